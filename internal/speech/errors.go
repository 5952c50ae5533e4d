package speech

import (
	"fmt"

	"github.com/moorebrett0/vernacular/internal/fault"
)

// Reason says why a speech call failed.
type Reason int

const (
	ReasonConfig Reason = iota + 1
	ReasonInvalidAudio
	ReasonEmptyTranscript
	ReasonNoAudio
	ReasonHTTPStatus
	ReasonTimeout
	ReasonNetwork
)

func (r Reason) String() string {
	switch r {
	case ReasonConfig:
		return "not configured"
	case ReasonInvalidAudio:
		return "invalid audio"
	case ReasonEmptyTranscript:
		return "empty transcript"
	case ReasonNoAudio:
		return "no audio"
	case ReasonHTTPStatus:
		return "http error"
	case ReasonTimeout:
		return "timeout"
	case ReasonNetwork:
		return "network error"
	default:
		return "unknown"
	}
}

func reasonKind(r Reason) fault.Kind {
	switch r {
	case ReasonConfig:
		return fault.KindConfiguration
	case ReasonInvalidAudio:
		return fault.KindValidation
	default:
		return fault.KindTransport
	}
}

// TranscriptionError is returned by SpeechToText.
type TranscriptionError struct {
	Reason Reason
	Status int    // HTTP status for ReasonHTTPStatus
	Detail string // vendor message or raw body
	Err    error
}

func (e *TranscriptionError) Error() string {
	switch e.Reason {
	case ReasonConfig:
		return "speech API key not configured"
	case ReasonInvalidAudio:
		return fmt.Sprintf("unsupported audio: %v", e.Err)
	case ReasonEmptyTranscript:
		return "empty transcript received from speech API"
	case ReasonHTTPStatus:
		return fmt.Sprintf("HTTP error during audio transcription: %d - %s", e.Status, e.Detail)
	case ReasonTimeout:
		return "audio transcription timed out"
	case ReasonNetwork:
		return fmt.Sprintf("network error during audio transcription: %v", e.Err)
	default:
		return fmt.Sprintf("audio transcription failed: %v", e.Err)
	}
}

func (e *TranscriptionError) Unwrap() error    { return e.Err }
func (e *TranscriptionError) Kind() fault.Kind { return reasonKind(e.Reason) }

// SynthesisError is returned by TextToSpeech.
type SynthesisError struct {
	Reason Reason
	Status int
	Detail string
	Err    error
}

func (e *SynthesisError) Error() string {
	switch e.Reason {
	case ReasonConfig:
		return "speech API key not configured"
	case ReasonNoAudio:
		return "no audio data in response"
	case ReasonHTTPStatus:
		return fmt.Sprintf("HTTP error during speech synthesis: %d - %s", e.Status, e.Detail)
	case ReasonTimeout:
		return "speech synthesis timed out"
	case ReasonNetwork:
		return fmt.Sprintf("network error during speech synthesis: %v", e.Err)
	default:
		return fmt.Sprintf("speech synthesis failed: %v", e.Err)
	}
}

func (e *SynthesisError) Unwrap() error    { return e.Err }
func (e *SynthesisError) Kind() fault.Kind { return reasonKind(e.Reason) }

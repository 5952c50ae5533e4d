package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Vendor endpoints used when none are configured.
const (
	DefaultSTTURL  = "https://api.sarvam.ai/speech-to-text"
	DefaultTTSURL  = "https://api.sarvam.ai/text-to-speech"
	DefaultTimeout = 45 * time.Second
)

// Config configures the speech client.
type Config struct {
	APIKey     string
	STTURL     string
	TTSURL     string
	Timeout    time.Duration
	SampleRate int    // for headerless PCM input
	TempDir    string // scratch space for audio uploads; "" uses os.TempDir
}

// Client converts between speech and text through the vendor's HTTP API.
// Calls are synchronous and stateless and are never retried.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a speech client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.STTURL == "" {
		cfg.STTURL = DefaultSTTURL
	}
	if cfg.TTSURL == "" {
		cfg.TTSURL = DefaultTTSURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// SpeechToText transcribes audio. The audio is normalized to mono PCM WAV
// and staged in a temp file that is removed on every exit path.
func (c *Client) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	if !c.Configured() {
		return "", &TranscriptionError{Reason: ReasonConfig}
	}

	wav, err := NormalizeWAV(audio, c.cfg.SampleRate)
	if err != nil {
		return "", &TranscriptionError{Reason: ReasonInvalidAudio, Err: err}
	}

	path, cleanup, err := stageAudio(c.cfg.TempDir, wav)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	defer cleanup()

	body, contentType, err := multipartAudio(path)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.STTURL, body)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	req.Header.Set("api-subscription-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	raw, status, err := c.do(req)
	if err != nil {
		return "", &TranscriptionError{Reason: transportReason(err), Err: err}
	}
	if status < 200 || status > 299 {
		return "", &TranscriptionError{Reason: ReasonHTTPStatus, Status: status, Detail: errorDetail(raw)}
	}

	transcript := gjson.GetBytes(raw, "transcript").String()
	if strings.TrimSpace(transcript) == "" {
		return "", &TranscriptionError{Reason: ReasonEmptyTranscript}
	}

	slog.Info("speech: transcribed audio", "bytes", len(wav), "chars", len(transcript))
	return DecodeUnicodeEscapes(transcript), nil
}

// TextToSpeech synthesizes text in the given language and returns the
// decoded audio bytes.
func (c *Client) TextToSpeech(ctx context.Context, text, language string) ([]byte, error) {
	if !c.Configured() {
		return nil, &SynthesisError{Reason: ReasonConfig}
	}

	payload, err := json.Marshal(map[string]string{
		"text":                 text,
		"target_language_code": language,
	})
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TTSURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	req.Header.Set("api-subscription-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return nil, &SynthesisError{Reason: transportReason(err), Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &SynthesisError{Reason: ReasonHTTPStatus, Status: status, Detail: errorDetail(raw)}
	}

	encoded := gjson.GetBytes(raw, "audios.0").String()
	if encoded == "" {
		return nil, &SynthesisError{Reason: ReasonNoAudio}
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &SynthesisError{Reason: ReasonNoAudio, Err: fmt.Errorf("decode audio: %w", err)}
	}

	slog.Info("speech: synthesized reply", "language", language, "bytes", len(audio))
	return audio, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

// stageAudio writes audio to a temp file and returns a cleanup func that
// removes it. On error nothing is left behind.
func stageAudio(dir string, audio []byte) (string, func(), error) {
	f, err := os.CreateTemp(dir, "vernacular-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("create temp audio: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("speech: failed to remove temp audio", "path", path, "err", err)
		}
	}

	if _, err := f.Write(audio); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp audio: %w", err)
	}
	return path, cleanup, nil
}

func multipartAudio(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open temp audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	h.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func transportReason(err error) Reason {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ReasonTimeout
	}
	return ReasonNetwork
}

// errorDetail prefers the vendor's message field over the raw body.
func errorDetail(raw []byte) string {
	for _, path := range []string{"message", "error.message", "detail"} {
		if v := gjson.GetBytes(raw, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return "Unknown error"
}

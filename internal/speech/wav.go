package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultSampleRate is assumed for headerless PCM input.
const DefaultSampleRate = 16000

const wavFormatPCM = 1

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// NormalizeWAV returns audio as a single-channel PCM WAV file. WAV input
// is re-wrapped (stereo PCM is downmixed, extra chunks dropped); input
// without a RIFF header is taken as 16-bit little-endian mono PCM at
// sampleRate. Compressed formats are rejected.
func NormalizeWAV(audio []byte, sampleRate int) ([]byte, error) {
	if len(audio) == 0 {
		return nil, errors.New("no audio data")
	}
	if !isWAV(audio) {
		if sampleRate <= 0 {
			sampleRate = DefaultSampleRate
		}
		if len(audio)%2 != 0 {
			return nil, errors.New("raw PCM must be 16-bit samples")
		}
		return encodeWAV(audio, uint32(sampleRate), 16), nil
	}

	format, data, err := parseWAV(audio)
	if err != nil {
		return nil, err
	}
	if format.AudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("unsupported WAV encoding %d, only PCM is accepted", format.AudioFormat)
	}
	if format.Channels == 1 {
		return encodeWAV(data, format.SampleRate, format.BitsPerSample), nil
	}
	mono, err := downmix(data, int(format.Channels), int(format.BitsPerSample))
	if err != nil {
		return nil, err
	}
	return encodeWAV(mono, format.SampleRate, format.BitsPerSample), nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

func parseWAV(b []byte) (wavFormat, []byte, error) {
	var (
		format  wavFormat
		data    []byte
		hasFmt  bool
		hasData bool
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(b) {
			// Streaming writers leave the data size unset; take what is there.
			if id != "data" {
				return format, nil, fmt.Errorf("truncated %q chunk", id)
			}
			end = len(b)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return format, nil, errors.New("short fmt chunk")
			}
			if err := binary.Read(bytes.NewReader(b[body:body+16]), binary.LittleEndian, &format); err != nil {
				return format, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			hasFmt = true
		case "data":
			data = b[body:end]
			hasData = true
		}
		pos = end + (end-body)%2 // chunks are word aligned
	}
	if !hasFmt || !hasData {
		return format, nil, errors.New("WAV is missing fmt or data chunk")
	}
	return format, data, nil
}

// downmix averages interleaved channels into one.
func downmix(data []byte, channels, bits int) ([]byte, error) {
	width := bits / 8
	frame := width * channels
	if width == 0 || frame == 0 {
		return nil, fmt.Errorf("unsupported sample width %d", bits)
	}
	frames := len(data) / frame
	out := make([]byte, frames*width)

	switch bits {
	case 8:
		for f := 0; f < frames; f++ {
			sum := 0
			for c := 0; c < channels; c++ {
				sum += int(data[f*frame+c])
			}
			out[f] = byte(sum / channels)
		}
	case 16:
		for f := 0; f < frames; f++ {
			sum := 0
			for c := 0; c < channels; c++ {
				off := f*frame + c*2
				sum += int(int16(binary.LittleEndian.Uint16(data[off:])))
			}
			binary.LittleEndian.PutUint16(out[f*2:], uint16(int16(sum/channels)))
		}
	default:
		return nil, fmt.Errorf("cannot downmix %d-bit audio", bits)
	}
	return out, nil
}

func encodeWAV(pcm []byte, sampleRate uint32, bits uint16) []byte {
	blockAlign := bits / 8
	header := struct {
		RIFF     [4]byte
		Size     uint32
		WAVE     [4]byte
		FmtID    [4]byte
		FmtSize  uint32
		Format   wavFormat
		DataID   [4]byte
		DataSize uint32
	}{
		RIFF:    [4]byte{'R', 'I', 'F', 'F'},
		Size:    uint32(36 + len(pcm)),
		WAVE:    [4]byte{'W', 'A', 'V', 'E'},
		FmtID:   [4]byte{'f', 'm', 't', ' '},
		FmtSize: 16,
		Format: wavFormat{
			AudioFormat:   wavFormatPCM,
			Channels:      1,
			SampleRate:    sampleRate,
			ByteRate:      sampleRate * uint32(blockAlign),
			BlockAlign:    blockAlign,
			BitsPerSample: bits,
		},
		DataID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize: uint32(len(pcm)),
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	binary.Write(&buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}

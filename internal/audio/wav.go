package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
)

const wavHeaderSize = 44

// EncodeWAV wraps a mono segment in a PCM WAV container.
func EncodeWAV(seg Segment) ([]byte, error) {
	return EncodeWAVPCM16LE(PCM16LE(seg.Samples), seg.SampleRate)
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	if err := writeWAV(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeWAV(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
		formatPCM     = 1
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	dataSize := uint32(len(pcm))

	w := bufio.NewWriter(out)
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(wavHeaderSize-8) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(formatPCM),
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * channels * bitsPerSample / 8),
		uint16(channels * bitsPerSample / 8),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

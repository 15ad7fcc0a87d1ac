package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestPCM16LEIsInverseOfSamplesFromPCM16LE(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got := SamplesFromPCM16LE(PCM16LE(in))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample[%d] = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS(make([]int16, 160)); got != 0 {
		t.Fatalf("RMS(silence) = %v, want 0", got)
	}
	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 16384
	}
	if got := RMS(loud); got < 0.49 || got > 0.51 {
		t.Fatalf("RMS(half scale) = %v, want ~0.5", got)
	}
}

func TestResampleChangesLength(t *testing.T) {
	in := make([]int16, 240)
	for i := range in {
		in[i] = int16(i)
	}
	up := Resample(in, 24000, 48000)
	if len(up) != 480 {
		t.Fatalf("len(up) = %d, want 480", len(up))
	}
	if up[2] != in[1] {
		t.Fatalf("up[2] = %d, want %d", up[2], in[1])
	}
	down := Resample(in, 48000, 16000)
	if len(down) != 80 {
		t.Fatalf("len(down) = %d, want 80", len(down))
	}
	same := Resample(in, 16000, 16000)
	if len(same) != len(in) {
		t.Fatalf("len(same) = %d, want %d", len(same), len(in))
	}
}

func TestSegmentAppendAndDuration(t *testing.T) {
	var seg Segment
	seg.Append(Frame{Samples: make([]int16, 480), SampleRate: 48000})
	seg.Append(Frame{Samples: make([]int16, 480), SampleRate: 48000})
	if seg.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", seg.SampleRate)
	}
	if seg.Duration() != 20*time.Millisecond {
		t.Fatalf("Duration = %v, want 20ms", seg.Duration())
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := PCM16LE([]int16{1, 2, 3, 4})
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", size, len(pcm))
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}
}

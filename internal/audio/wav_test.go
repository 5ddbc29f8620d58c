package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(math.Sin(float64(i)/20) * 12000)
	}
	samples[0] = math.MinInt16
	samples[1] = math.MaxInt16

	data, err := EncodeWAVBytes(samples, 16000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAVHeaderLayout(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data, err := EncodeWAVBytes(samples, 16000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) < 44 {
		t.Fatalf("container shorter than canonical header: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: % x", data[0:12])
	}
	if string(data[12:16]) != "fmt " {
		t.Fatalf("missing fmt chunk: % x", data[12:16])
	}
}

func TestEncodeWAVRejectsBadParams(t *testing.T) {
	if _, err := EncodeWAVBytes([]int16{1}, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := EncodeWAVBytes([]int16{1}, 16000, 0); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestFloatToPCM16Clamps(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1.5, -1.5, 1, -1}
	pcm := FloatToPCM16(samples)
	if pcm[3] != math.MaxInt16 {
		t.Fatalf("expected over-range sample clamped to %d, got %d", math.MaxInt16, pcm[3])
	}
	if pcm[4] != -math.MaxInt16 {
		t.Fatalf("expected under-range sample clamped to %d, got %d", -math.MaxInt16, pcm[4])
	}
	if pcm[0] != 0 {
		t.Fatalf("expected zero to stay zero, got %d", pcm[0])
	}
}

func TestPCM16BytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 1234, -1234, 32767, -32768}
	back := BytesToPCM16(PCM16Bytes(samples))
	if len(back) != len(samples) {
		t.Fatalf("length mismatch: %d vs %d", len(back), len(samples))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, back[i], samples[i])
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
	flat := []float32{0.5, 0.5, 0.5, 0.5}
	if got := RMS(flat); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %f", got)
	}
}

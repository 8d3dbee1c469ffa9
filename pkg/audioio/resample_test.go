package audioio

import "testing"

func TestResampleHalvesRate(t *testing.T) {
	in := []int16{0, 100, 200, 300, 400, 500, 600, 700}
	out := Resample(in, 48000, 24000)
	if len(out) != 4 {
		t.Fatalf("got %d samples, want 4", len(out))
	}
	for i, s := range out {
		want := in[i*2]
		if s != want {
			t.Errorf("sample %d = %d, want %d", i, s, want)
		}
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []int16{1, 2, 3}
	out := Resample(in, 16000, 16000)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Errorf("got %v, want identity", out)
	}
}

func TestResampleUpInterpolates(t *testing.T) {
	in := []int16{0, 100}
	out := Resample(in, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("got %d samples, want 4", len(out))
	}
	if out[0] != 0 || out[1] != 50 {
		t.Errorf("interpolation = %v, want [0 50 ...]", out)
	}
}

func TestBytesSamplesRoundTrip(t *testing.T) {
	samples := []int16{-32768, -1, 0, 1, 32767}
	got := BytesToSamples(SamplesToBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("length %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := []int16{100, 200, -100, 100}
	mono := StereoToMono(stereo)
	if len(mono) != 2 || mono[0] != 150 || mono[1] != 0 {
		t.Errorf("mono = %v, want [150 0]", mono)
	}
}

func TestChunkBytesRoundTrip(t *testing.T) {
	var chunk AudioChunk
	chunk.FromBytes([]byte{0x01, 0x00, 0xFF, 0x7F}, 24000, 1)
	if chunk.Samples[0] != 1 || chunk.Samples[1] != 32767 {
		t.Errorf("samples = %v", chunk.Samples)
	}
	if got := chunk.Bytes(); got[2] != 0xFF || got[3] != 0x7F {
		t.Errorf("bytes = %v", got)
	}
}

func TestChunkDuration(t *testing.T) {
	chunk := AudioChunk{Samples: make([]int16, 480), SampleRate: 24000, Channels: 1}
	if d := chunk.Duration(); d != 0.02 {
		t.Errorf("duration = %v, want 0.02", d)
	}
}

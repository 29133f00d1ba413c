package telephony

import (
	"encoding/binary"
	"testing"
)

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

func samplesFromPCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}

func TestMulawRoundTrip_ApproximatesInput(t *testing.T) {
	in := []int16{0, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000}
	decoded := samplesFromPCM(MulawDecode(MulawEncode(pcmFromSamples(in))))
	if len(decoded) != len(in) {
		t.Fatalf("length mismatch: got %d want %d", len(decoded), len(in))
	}
	for i, want := range in {
		got := decoded[i]
		diff := int32(got) - int32(want)
		if diff < 0 {
			diff = -diff
		}
		// mu-law is lossy; error grows with amplitude
		tolerance := int32(want)/16 + 64
		if tolerance < 0 {
			tolerance = -tolerance
		}
		if diff > tolerance {
			t.Fatalf("sample %d: got %d want ~%d (diff %d > tol %d)", i, got, want, diff, tolerance)
		}
	}
}

func TestUpsample8kTo16k_DoublesLength(t *testing.T) {
	in := pcmFromSamples([]int16{0, 1000, 2000, 3000})
	out := samplesFromPCM(Upsample8kTo16k(in))
	if len(out) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(out))
	}
	// interpolated sample sits between its neighbors
	if out[3] != 1000 || out[2] < 0 || out[2] > 1000 {
		t.Fatalf("unexpected interpolation: %v", out)
	}
}

func TestDownsample48kTo8k_AveragesWindows(t *testing.T) {
	samples := make([]int16, 12)
	for i := range samples {
		samples[i] = 600
	}
	out := samplesFromPCM(Downsample48kTo8k(pcmFromSamples(samples)))
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
	for _, s := range out {
		if s != 600 {
			t.Fatalf("expected 600, got %d", s)
		}
	}
}

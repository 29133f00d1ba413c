package telephony

import "encoding/binary"

// G.711 mu-law transcoding and the sample-rate conversions needed to bridge
// 8kHz telephone audio with the 16kHz input / 48kHz output of the speech
// providers.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawEncode compresses 16-bit LE PCM into 8-bit mu-law.
func MulawEncode(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		out[i/2] = linearToMulaw(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
	}
	return out
}

// MulawDecode expands 8-bit mu-law into 16-bit LE PCM.
func MulawDecode(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(mulawToLinear(b)))
	}
	return out
}

func linearToMulaw(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias
	exponent := byte(7)
	for mask := int32(0x4000); (s&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | (exponent << 4) | mantissa)
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	s := (int32(mantissa)<<3 + mulawBias) << exponent
	s -= mulawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}

// Upsample8kTo16k doubles the sample rate with linear interpolation.
func Upsample8kTo16k(pcm []byte) []byte {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	out := make([]byte, n*4)
	var prev int16
	for i := 0; i < n; i++ {
		cur := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		if i == 0 {
			prev = cur
		}
		mid := int16((int32(prev) + int32(cur)) / 2)
		binary.LittleEndian.PutUint16(out[i*4:i*4+2], uint16(mid))
		binary.LittleEndian.PutUint16(out[i*4+2:i*4+4], uint16(cur))
		prev = cur
	}
	return out
}

// Downsample48kTo8k decimates by six, averaging each window to tame
// aliasing.
func Downsample48kTo8k(pcm []byte) []byte {
	n := len(pcm) / 2
	outSamples := n / 6
	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		var sum int32
		for j := 0; j < 6; j++ {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[(i*6+j)*2 : (i*6+j)*2+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(sum/6)))
	}
	return out
}

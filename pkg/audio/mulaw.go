package audio

// G.711 mu-law companding. Telephony media streams carry 8-bit mu-law at
// 8 kHz; the pipeline works in 16-bit linear PCM internally.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// EncodeMuLaw compands one 16-bit linear sample to 8-bit mu-law.
func EncodeMuLaw(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLaw expands one 8-bit mu-law byte to a 16-bit linear sample.
func DecodeMuLaw(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	s := (int32(mantissa)<<3 + muLawBias) << exponent
	s -= muLawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}

// DecodeMuLawBytes expands a mu-law payload to a linear PCM chunk at the
// given sample rate (mono).
func DecodeMuLawBytes(payload []byte, sampleRate int) PCM {
	samples := make([]int16, len(payload))
	for i, b := range payload {
		samples[i] = DecodeMuLaw(b)
	}
	return FromSamples(samples, sampleRate, 1)
}

// EncodeMuLawBytes compands a linear PCM chunk to a mu-law payload. Only the
// first channel is used.
func EncodeMuLawBytes(p PCM) []byte {
	samples := p.Samples()
	step := p.NumChannels
	if step < 1 {
		step = 1
	}
	out := make([]byte, 0, len(samples)/step)
	for i := 0; i < len(samples); i += step {
		out = append(out, EncodeMuLaw(samples[i]))
	}
	return out
}

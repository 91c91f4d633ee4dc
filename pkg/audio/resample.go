package audio

import "fmt"

// Resample converts a mono chunk to a different sample rate using linear
// interpolation. Good enough for narrowband telephony; callers that need
// better fidelity should resample upstream.
func Resample(p PCM, rate int) (PCM, error) {
	if p.NumChannels != 1 {
		return PCM{}, fmt.Errorf("audio: resample requires mono input, got %d channels", p.NumChannels)
	}
	if rate <= 0 {
		return PCM{}, fmt.Errorf("audio: invalid target rate %d", rate)
	}
	if p.SampleRate == rate || len(p.Data) == 0 {
		return p, nil
	}

	in := p.Samples()
	outLen := int(int64(len(in)) * int64(rate) / int64(p.SampleRate))
	if outLen == 0 {
		return PCM{SampleRate: rate, NumChannels: 1}, nil
	}

	out := make([]int16, outLen)
	step := float64(p.SampleRate) / float64(rate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		a, b := float64(in[j]), float64(in[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return FromSamples(out, rate, 1), nil
}

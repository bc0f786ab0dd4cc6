package codec

// ReadMono decodes a PCM WAV file into mono float32 samples in [-1, 1]
// resampled to rate.
func ReadMono(path string, rate int) ([]float32, error) {
	buf, err := decodeWAV(path)
	if err != nil {
		return nil, err
	}
	ch := buf.Format.NumChannels
	scale := float32(int64(1) << (buf.SourceBitDepth - 1))
	mono := make([]float32, len(buf.Data)/ch)
	for i := range mono {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += float32(buf.Data[i*ch+c])
		}
		mono[i] = sum / float32(ch) / scale
	}
	return resampleLinear(mono, buf.Format.SampleRate, rate), nil
}

// ReadMono16 is ReadMono converted to 16-bit samples.
func ReadMono16(path string, rate int) ([]int16, error) {
	samples, err := ReadMono(path, rate)
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		out[i] = int16(s * 32767)
	}
	return out, nil
}

func resampleLinear(in []float32, srcSR, dstSR int) []float32 {
	if srcSR == dstSR || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(dstSR) / float64(srcSR)
	outLen := int(float64(len(in))*ratio + 0.9999)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

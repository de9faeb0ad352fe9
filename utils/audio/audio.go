package audio

import (
	"encoding/binary"
	"fmt"

	"senabot/core"

	"github.com/zaf/g711"
)

// ConvertAudioChunk converts a chunk to the requested encoding, channel count
// and sample rate. Telephony legs carry 8 kHz μ-law; the STT and TTS vendors
// speak 16-bit linear PCM, so most pipeline edges pass through here.
func ConvertAudioChunk(in core.AudioChunk, format core.AudioEncodingFormat, channels, sampleRate int) (core.AudioChunk, error) {
	if in.Data == nil || len(*in.Data) == 0 {
		return core.AudioChunk{}, fmt.Errorf("audio: empty chunk")
	}
	if in.Format == format && in.Channels == channels && in.SampleRate == sampleRate {
		return in, nil
	}

	pcm, err := decodeToLinear(in)
	if err != nil {
		return core.AudioChunk{}, err
	}

	if in.Channels != channels {
		pcm, err = remixChannels(pcm, in.Channels, channels)
		if err != nil {
			return core.AudioChunk{}, err
		}
	}

	if in.SampleRate != sampleRate {
		pcm = resampleLinear(pcm, in.SampleRate, sampleRate)
	}

	out, err := encodeFromLinear(pcm, format)
	if err != nil {
		return core.AudioChunk{}, err
	}

	return core.AudioChunk{
		Data:       &out,
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     format,
		Timestamp:  in.Timestamp,
	}, nil
}

// decodeToLinear expands the chunk to 16-bit little-endian samples.
func decodeToLinear(in core.AudioChunk) ([]int16, error) {
	var raw []byte
	switch in.Format {
	case core.PCM:
		raw = *in.Data
	case core.ULAW:
		raw = g711.DecodeUlaw(*in.Data)
	case core.ALAW:
		raw = g711.DecodeAlaw(*in.Data)
	default:
		return nil, fmt.Errorf("audio: unsupported source format %d", in.Format)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

func encodeFromLinear(samples []int16, format core.AudioEncodingFormat) ([]byte, error) {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	switch format {
	case core.PCM:
		return raw, nil
	case core.ULAW:
		return g711.EncodeUlaw(raw), nil
	case core.ALAW:
		return g711.EncodeAlaw(raw), nil
	default:
		return nil, fmt.Errorf("audio: unsupported target format %d", format)
	}
}

// remixChannels handles the two cases that occur in practice: stereo to mono
// mixdown and mono to stereo duplication.
func remixChannels(samples []int16, from, to int) ([]int16, error) {
	switch {
	case from == to:
		return samples, nil
	case from == 2 && to == 1:
		out := make([]int16, len(samples)/2)
		for i := range out {
			out[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
		}
		return out, nil
	case from == 1 && to == 2:
		out := make([]int16, len(samples)*2)
		for i, s := range samples {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("audio: unsupported channel conversion %d -> %d", from, to)
	}
}

// resampleLinear converts mono PCM between sample rates using linear
// interpolation. Good enough for speech between the 8/16/24 kHz rates this
// pipeline uses.
func resampleLinear(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}
	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

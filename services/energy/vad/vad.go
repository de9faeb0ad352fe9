package vad

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"senabot/core"
	audioutils "senabot/utils/audio"
)

type Config struct {
	// Samples per analysis frame. 160 is 20 ms at 8 kHz.
	FrameSize int `json:"frame_size"`

	// Minimum normalized RMS for a frame to ever count as speech, whatever
	// the noise floor looks like.
	MinSpeechRMS float64 `json:"min_speech_rms"`

	// How far above the tracked noise floor a frame must sit to score full
	// confidence.
	NoiseFloorRatio float64 `json:"noise_floor_ratio"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		FrameSize:       160,
		MinSpeechRMS:    0.015,
		NoiseFloorRatio: 3.0,
	}
}

// EnergyVADService scores speech activity from frame energy against an
// adaptive noise floor. It has no model weights to load, which keeps the
// pipeline free of native dependencies; accuracy is good enough for
// telephony audio where the caller is close to the microphone.
type EnergyVADService struct {
	config Config

	mu         sync.Mutex
	buffer     []int16
	noiseFloor float64
}

func NewEnergyVADService(config Config) *EnergyVADService {
	return &EnergyVADService{
		config:     config,
		noiseFloor: config.MinSpeechRMS / 2,
	}
}

func (s *EnergyVADService) Initialize(context.Context) error { return nil }
func (s *EnergyVADService) Cleanup() error                   { return nil }

func (s *EnergyVADService) Reset() error {
	s.mu.Lock()
	s.buffer = nil
	s.noiseFloor = s.config.MinSpeechRMS / 2
	s.mu.Unlock()
	return nil
}

// ProcessAudio accumulates samples until a full frame is available, then
// scores it. Results with Ready=false mean more audio is needed.
func (s *EnergyVADService) ProcessAudio(chunk core.AudioChunk) (core.VADResult, error) {
	pcm := chunk
	if chunk.Format != core.PCM {
		converted, err := audioutils.ConvertAudioChunk(chunk, core.PCM, chunk.Channels, chunk.SampleRate)
		if err != nil {
			return core.VADResult{}, err
		}
		pcm = converted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := *pcm.Data
	for i := 0; i+1 < len(data); i += 2 {
		s.buffer = append(s.buffer, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	if len(s.buffer) < s.config.FrameSize {
		return core.VADResult{Ready: false}, nil
	}

	frame := s.buffer[:s.config.FrameSize]
	s.buffer = s.buffer[s.config.FrameSize:]

	rms := frameRMS(frame)
	confidence := s.score(rms)
	s.adaptNoiseFloor(rms)

	return core.VADResult{Confidence: confidence, Ready: true}, nil
}

func frameRMS(frame []int16) float64 {
	var sum float64
	for _, sample := range frame {
		v := float64(sample) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func (s *EnergyVADService) score(rms float64) float32 {
	if rms < s.config.MinSpeechRMS {
		return 0
	}
	target := s.noiseFloor * s.config.NoiseFloorRatio
	if target < s.config.MinSpeechRMS {
		target = s.config.MinSpeechRMS
	}
	confidence := rms / (target * 2)
	if confidence > 1 {
		confidence = 1
	}
	return float32(confidence)
}

// adaptNoiseFloor tracks ambient energy with a slow rise and a fast decay,
// so short speech bursts never drag the floor up.
func (s *EnergyVADService) adaptNoiseFloor(rms float64) {
	if rms > s.noiseFloor {
		s.noiseFloor += (rms - s.noiseFloor) * 0.02
	} else {
		s.noiseFloor += (rms - s.noiseFloor) * 0.2
	}
}

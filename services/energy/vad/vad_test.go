package vad

import (
	"encoding/binary"
	"math"
	"testing"

	"senabot/core"
)

func pcmChunk(samples []int16) core.AudioChunk {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return core.AudioChunk{Data: &data, SampleRate: 8000, Channels: 1, Format: core.PCM}
}

func sine(n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.MaxInt16 * math.Sin(2*math.Pi*float64(i)*440/8000))
	}
	return out
}

func TestSilenceScoresZero(t *testing.T) {
	svc := NewEnergyVADService(DefaultConfig())

	result, err := svc.ProcessAudio(pcmChunk(make([]int16, 160)))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if !result.Ready {
		t.Fatal("full frame should be ready")
	}
	if result.Confidence != 0 {
		t.Fatalf("silence confidence = %v, want 0", result.Confidence)
	}
}

func TestLoudSpeechScoresHigh(t *testing.T) {
	svc := NewEnergyVADService(DefaultConfig())

	result, err := svc.ProcessAudio(pcmChunk(sine(160, 0.5)))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if result.Confidence < 0.7 {
		t.Fatalf("loud speech confidence = %v, want >= 0.7", result.Confidence)
	}
}

func TestPartialFrameNotReady(t *testing.T) {
	svc := NewEnergyVADService(DefaultConfig())

	result, err := svc.ProcessAudio(pcmChunk(make([]int16, 40)))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if result.Ready {
		t.Fatal("partial frame must not be ready")
	}

	result, err = svc.ProcessAudio(pcmChunk(make([]int16, 120)))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if !result.Ready {
		t.Fatal("accumulated frames should complete a full frame")
	}
}

func TestNoiseFloorAdaptsToHum(t *testing.T) {
	svc := NewEnergyVADService(DefaultConfig())

	// Feed sustained low-level hum; confidence should drop as the floor
	// adapts upward.
	var last float32
	for i := 0; i < 200; i++ {
		result, err := svc.ProcessAudio(pcmChunk(sine(160, 0.05)))
		if err != nil {
			t.Fatalf("ProcessAudio: %v", err)
		}
		last = result.Confidence
	}
	first, err := NewEnergyVADService(DefaultConfig()).ProcessAudio(pcmChunk(sine(160, 0.05)))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if last >= first.Confidence {
		t.Fatalf("noise floor did not adapt: first %v, after hum %v", first.Confidence, last)
	}
}

func TestULawInputConverted(t *testing.T) {
	svc := NewEnergyVADService(DefaultConfig())

	data := make([]byte, 160)
	for i := range data {
		data[i] = 0xFF // μ-law near-silence
	}
	chunk := core.AudioChunk{Data: &data, SampleRate: 8000, Channels: 1, Format: core.ULAW}
	result, err := svc.ProcessAudio(chunk)
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if !result.Ready {
		t.Fatal("expected a ready result for a full μ-law frame")
	}
	if result.Confidence != 0 {
		t.Fatalf("near-silence confidence = %v, want 0", result.Confidence)
	}
}

package capture

import (
	"encoding/binary"
	"math"
	"time"
)

// VADConfig holds voice activity detection parameters.
type VADConfig struct {
	SpeechThreshold  float64 // RMS energy that counts as a voice spike
	SilenceThreshold float64 // smoothed energy below this is silence
	Smoothing        float64 // EMA weight of the newest frame, 0 < s <= 1
	SilenceHold      time.Duration
	SampleRateHz     int
}

// DefaultVADConfig returns defaults for 16kHz telephony-grade audio.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThreshold:  500,
		SilenceThreshold: 300,
		Smoothing:        0.3,
		SilenceHold:      1200 * time.Millisecond,
		SampleRateHz:     16000,
	}
}

// VADEvent indicates a speech boundary.
type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechEnd
)

// VAD is an energy-based detector. Silence is only timed after the first
// voice spike so ambient noise before the caller speaks never ends a turn.
type VAD struct {
	config  VADConfig
	average float64
	primed  bool
	heard   bool
	silence time.Duration
	ended   bool
}

// NewVAD creates a new voice activity detector.
func NewVAD(cfg VADConfig) *VAD {
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = 1
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 16000
	}
	return &VAD{config: cfg}
}

// ProcessFrame analyzes a frame of 16-bit PCM audio and returns a VAD event.
// VADSpeechEnd is reported once; later frames return VADNone.
func (v *VAD) ProcessFrame(pcm []byte) VADEvent {
	if v.ended {
		return VADNone
	}

	energy := rmsEnergy(pcm)
	if !v.primed {
		v.average = energy
		v.primed = true
	} else {
		v.average = v.config.Smoothing*energy + (1-v.config.Smoothing)*v.average
	}

	if !v.heard {
		if energy >= v.config.SpeechThreshold {
			v.heard = true
			return VADSpeechStart
		}
		return VADNone
	}

	if v.average < v.config.SilenceThreshold {
		v.silence += pcmDuration(len(pcm), v.config.SampleRateHz)
		if v.silence >= v.config.SilenceHold {
			v.ended = true
			return VADSpeechEnd
		}
	} else {
		v.silence = 0
	}
	return VADNone
}

// HeardSpeech reports whether a voice spike has been detected.
func (v *VAD) HeardSpeech() bool {
	return v.heard
}

// Average returns the smoothed energy estimate.
func (v *VAD) Average() float64 {
	return v.average
}

// Reset clears the VAD state.
func (v *VAD) Reset() {
	v.average = 0
	v.primed = false
	v.heard = false
	v.silence = 0
	v.ended = false
}

// rmsEnergy computes the root-mean-square energy of 16-bit signed PCM audio.
func rmsEnergy(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	numSamples := len(pcm) / 2
	var sumSquares float64

	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sumSquares += float64(sample) * float64(sample)
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}

// pcmDuration is the playback time of n bytes of 16-bit mono audio.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}

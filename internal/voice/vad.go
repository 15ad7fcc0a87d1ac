package voice

import (
	"time"

	"github.com/ent0n29/voiceagent/internal/audio"
)

type EnergyVADConfig struct {
	// Threshold is the normalised RMS level above which a frame counts as voiced.
	Threshold  float64
	MinSpeech  time.Duration
	MinSilence time.Duration
}

// EnergyVAD is an RMS detector with hangover on both edges. Speech starts
// after MinSpeech of consecutive voiced audio and ends after MinSilence of
// consecutive unvoiced audio.
type EnergyVAD struct {
	cfg      EnergyVADConfig
	speaking bool
	voiced   time.Duration
	silent   time.Duration
}

func NewEnergyVAD(cfg EnergyVADConfig) *EnergyVAD {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.015
	}
	if cfg.MinSpeech <= 0 {
		cfg.MinSpeech = 120 * time.Millisecond
	}
	if cfg.MinSilence <= 0 {
		cfg.MinSilence = 550 * time.Millisecond
	}
	return &EnergyVAD{cfg: cfg}
}

func (v *EnergyVAD) Process(frame audio.Frame) Activity {
	d := frame.Duration()
	loud := audio.RMS(frame.Samples) >= v.cfg.Threshold

	if !v.speaking {
		if !loud {
			v.voiced = 0
			return ActivityNone
		}
		v.voiced += d
		if v.voiced >= v.cfg.MinSpeech {
			v.speaking = true
			v.silent = 0
			return ActivitySpeechStart
		}
		return ActivityNone
	}

	if loud {
		v.silent = 0
		return ActivityNone
	}
	v.silent += d
	if v.silent >= v.cfg.MinSilence {
		v.speaking = false
		v.voiced = 0
		v.silent = 0
		return ActivitySpeechEnd
	}
	return ActivityNone
}

func (v *EnergyVAD) Reset() {
	v.speaking = false
	v.voiced = 0
	v.silent = 0
}

package pipeline

import (
	"github.com/rs/zerolog"
)

// Composer builds a Pipeline from a Selection, all or nothing.
type Composer struct {
	sel    Selection
	build  Builders
	logger zerolog.Logger
}

func NewComposer(sel Selection, builders Builders, logger zerolog.Logger) *Composer {
	return &Composer{
		sel:    sel,
		build:  builders.withDefaults(),
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// Compose constructs STT, VAD, TTS and LLM in that order and stops at the
// first failure. On error no Pipeline is returned.
func (c *Composer) Compose() (*Pipeline, error) {
	var p Pipeline
	var err error

	if p.STT, err = c.build.STT(c.sel.STT); err != nil {
		return nil, c.fail(ComponentSTT, c.sel.STT.Provider, err)
	}
	c.ok(ComponentSTT, c.sel.STT.Provider)

	if p.VAD, err = c.build.VAD(c.sel.VAD); err != nil {
		return nil, c.fail(ComponentVAD, c.sel.VAD.Provider, err)
	}
	c.ok(ComponentVAD, c.sel.VAD.Provider)

	if p.TTS, err = c.build.TTS(c.sel.TTS); err != nil {
		return nil, c.fail(ComponentTTS, c.sel.TTS.Provider, err)
	}
	c.ok(ComponentTTS, c.sel.TTS.Provider)

	if p.LLM, err = c.build.LLM(c.sel.LLM); err != nil {
		return nil, c.fail(ComponentLLM, c.sel.LLM.Provider, err)
	}
	c.ok(ComponentLLM, c.sel.LLM.Provider)

	p.Providers = Providers{
		STT: c.sel.STT.Provider,
		VAD: c.sel.VAD.Provider,
		TTS: c.sel.TTS.Provider,
		LLM: c.sel.LLM.Provider,
	}
	return &p, nil
}

func (c *Composer) ok(component, provider string) {
	c.logger.Info().Str("capability", component).Str("provider", provider).Msg("capability ready")
}

func (c *Composer) fail(component, provider string, err error) error {
	c.logger.Error().Err(err).Str("capability", component).Str("provider", provider).Msg("capability construction failed")
	return &ConfigError{Component: component, Provider: provider, Err: err}
}

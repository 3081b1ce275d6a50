package stt

import (
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/config"
)

// NewProvider resolves the transcription capability from configuration
func NewProvider(cfg *config.Config, logger zerolog.Logger) Provider {
	if cfg.DeepgramAPIKey == "" {
		logger.Warn().Msg("DEEPGRAM_API_KEY not set, transcription unsupported")
		return Unsupported{Reason: "speech recognition is not configured (DEEPGRAM_API_KEY)"}
	}
	return NewDeepgramProvider(cfg, logger)
}

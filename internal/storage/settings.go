package storage

import (
	"context"
	"strconv"
)

// Setting keys
const (
	KeyAPIKey        = "api_key"
	KeyCustomPrompt  = "custom_prompt"
	KeyFillerRemoval = "filler_removal"
)

// Settings reads user settings from the store, falling back to
// configuration defaults for anything never saved.
type Settings struct {
	store                *Store
	defaultAPIKey        string
	defaultFillerRemoval bool
}

// View is the client-facing snapshot of the settings
type View struct {
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
	APIKey           string `json:"apiKey"` // masked
	CustomPrompt     string `json:"customPrompt"`
	FillerRemoval    bool   `json:"fillerRemoval"`
}

// NewSettings creates a settings view over store
func NewSettings(store *Store, defaultAPIKey string, defaultFillerRemoval bool) *Settings {
	return &Settings{
		store:                store,
		defaultAPIKey:        defaultAPIKey,
		defaultFillerRemoval: defaultFillerRemoval,
	}
}

// APIKey returns the stored key, else the configured default. On a read
// error the default is returned together with the error.
func (s *Settings) APIKey(ctx context.Context) (string, error) {
	value, ok, err := s.store.Setting(ctx, KeyAPIKey)
	if err != nil || !ok || value == "" {
		return s.defaultAPIKey, err
	}
	return value, nil
}

// SetAPIKey stores key; an empty key reverts to the configured default
func (s *Settings) SetAPIKey(ctx context.Context, key string) error {
	if key == "" {
		return s.store.DeleteSetting(ctx, KeyAPIKey)
	}
	return s.store.SetSetting(ctx, KeyAPIKey, key)
}

// PromptTemplate returns the custom template, or "" when none is saved
func (s *Settings) PromptTemplate(ctx context.Context) (string, error) {
	value, _, err := s.store.Setting(ctx, KeyCustomPrompt)
	return value, err
}

// SetPromptTemplate stores a custom template; empty restores the default
func (s *Settings) SetPromptTemplate(ctx context.Context, template string) error {
	if template == "" {
		return s.store.DeleteSetting(ctx, KeyCustomPrompt)
	}
	return s.store.SetSetting(ctx, KeyCustomPrompt, template)
}

// FillerRemoval returns the filler-removal toggle
func (s *Settings) FillerRemoval(ctx context.Context) (bool, error) {
	value, ok, err := s.store.Setting(ctx, KeyFillerRemoval)
	if err != nil || !ok {
		return s.defaultFillerRemoval, err
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return s.defaultFillerRemoval, nil
	}
	return enabled, nil
}

// SetFillerRemoval stores the filler-removal toggle
func (s *Settings) SetFillerRemoval(ctx context.Context, enabled bool) error {
	return s.store.SetSetting(ctx, KeyFillerRemoval, strconv.FormatBool(enabled))
}

// Snapshot returns every setting with the API key masked
func (s *Settings) Snapshot(ctx context.Context) (View, error) {
	key, err := s.APIKey(ctx)
	if err != nil {
		return View{}, err
	}
	prompt, err := s.PromptTemplate(ctx)
	if err != nil {
		return View{}, err
	}
	filler, err := s.FillerRemoval(ctx)
	if err != nil {
		return View{}, err
	}

	return View{
		APIKeyConfigured: key != "",
		APIKey:           MaskSecret(key),
		CustomPrompt:     prompt,
		FillerRemoval:    filler,
	}, nil
}

// MaskSecret keeps the last four characters of a secret
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}

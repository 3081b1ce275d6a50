// Package api serves the REST surface used by the extension's options and
// history pages.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/storage"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

const (
	defaultConversationLimit = 10
	maxConversationLimit     = 100
	maxPromptBytes           = 64 << 10
	promptFileName           = "topic-prompt.txt"
)

// Handler serves conversation history, suggestion history and settings
type Handler struct {
	store    *storage.Store
	settings *storage.Settings
	logger   zerolog.Logger

	keyChanged func()
}

// NewHandler creates an API handler
func NewHandler(store *storage.Store, settings *storage.Settings, logger zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		settings: settings,
		logger:   observability.WithComponent(logger, "api"),
	}
}

// OnAPIKeyChange registers fn to run after a client stores a new API key
func (h *Handler) OnAPIKeyChange(fn func()) {
	h.keyChanged = fn
}

// RegisterRoutes registers the API routes on r
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleListConversations)
	r.Delete("/conversations", h.handleClearConversations)
	r.Get("/suggestions/history", h.handleSuggestionHistory)
	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handleUpdateSettings)
	r.Get("/prompt/export", h.handleExportPrompt)
	r.Post("/prompt/import", h.handleImportPrompt)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxConversationLimit {
			RespondError(w, apperr.Newf(apperr.InvalidArgument, "limit must be between 1 and %d", maxConversationLimit))
			return
		}
		limit = n
	}

	conversations, err := h.store.RecentConversations(r.Context(), limit)
	if err != nil {
		h.fail(w, "list_conversations", err)
		return
	}
	if conversations == nil {
		conversations = []storage.Conversation{}
	}

	RespondJSON(w, http.StatusOK, conversations)
}

func (h *Handler) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearConversations(r.Context()); err != nil {
		h.fail(w, "clear_conversations", err)
		return
	}

	h.logger.Info().Msg("Conversation history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSuggestionHistory(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.SuggestionHistory(r.Context())
	if err != nil {
		h.fail(w, "suggestion_history", err)
		return
	}
	if sets == nil {
		sets = []suggestion.Set{}
	}

	RespondJSON(w, http.StatusOK, sets)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := h.settings.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "read_settings", err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// settingsUpdate holds the fields a client may change; absent fields are kept
type settingsUpdate struct {
	APIKey        *string `json:"apiKey"`
	CustomPrompt  *string `json:"customPrompt"`
	FillerRemoval *bool   `json:"fillerRemoval"`
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondError(w, apperr.Wrap(err, apperr.InvalidArgument, "invalid request body"))
		return
	}

	ctx := r.Context()

	if payload.APIKey != nil {
		if err := h.settings.SetAPIKey(ctx, strings.TrimSpace(*payload.APIKey)); err != nil {
			h.fail(w, "write_settings", err)
			return
		}
		if h.keyChanged != nil {
			h.keyChanged()
		}
	}
	if payload.CustomPrompt != nil {
		if err := h.settings.SetPromptTemplate(ctx, *payload.CustomPrompt); err != nil {
			h.fail(w, "write_settings", err)
			return
		}
	}
	if payload.FillerRemoval != nil {
		if err := h.settings.SetFillerRemoval(ctx, *payload.FillerRemoval); err != nil {
			h.fail(w, "write_settings", err)
			return
		}
	}

	view, err := h.settings.Snapshot(ctx)
	if err != nil {
		h.fail(w, "read_settings", err)
		return
	}

	h.logger.Info().
		Bool("api_key_configured", view.APIKeyConfigured).
		Bool("custom_prompt", view.CustomPrompt != "").
		Bool("filler_removal", view.FillerRemoval).
		Msg("Settings updated")
	RespondJSON(w, http.StatusOK, view)
}

// handleExportPrompt downloads the effective prompt template as text
func (h *Handler) handleExportPrompt(w http.ResponseWriter, r *http.Request) {
	template, err := h.settings.PromptTemplate(r.Context())
	if err != nil {
		h.fail(w, "read_settings", err)
		return
	}
	if template == "" {
		template = suggestion.DefaultTemplate
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+promptFileName+`"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, template)
}

// handleImportPrompt stores an uploaded text file as the custom template
func (h *Handler) handleImportPrompt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPromptBytes+1))
	if err != nil {
		RespondError(w, apperr.Wrap(err, apperr.InvalidArgument, "failed to read prompt"))
		return
	}
	if len(body) > maxPromptBytes {
		RespondError(w, apperr.Newf(apperr.InvalidArgument, "prompt exceeds %d bytes", maxPromptBytes))
		return
	}

	template := strings.TrimSpace(string(body))
	if template == "" {
		RespondError(w, apperr.New(apperr.InvalidArgument, "prompt is empty"))
		return
	}

	if err := h.settings.SetPromptTemplate(r.Context(), template); err != nil {
		h.fail(w, "write_settings", err)
		return
	}

	h.logger.Info().
		Int("bytes", len(template)).
		Bool("has_placeholder", strings.Contains(template, suggestion.Placeholder)).
		Msg("Prompt imported")

	view, err := h.settings.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "read_settings", err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(w http.ResponseWriter, operation string, err error) {
	if apperr.IsCode(err, apperr.StorageUnavailable) {
		observability.RecordStorageError(operation)
	}
	h.logger.Error().Err(err).Str("operation", operation).Msg("Request failed")
	RespondError(w, err)
}

package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/servetable/servetable/internal/guest"
	"github.com/servetable/servetable/internal/httputil"
)

// Handler serves payment intent and webhook endpoints.
type Handler struct {
	svc    *Service
	tokens *guest.Tokens
	logger *slog.Logger
}

// NewHandler creates a payments handler.
func NewHandler(svc *Service, tokens *guest.Tokens, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// Routes returns the payment routes. Webhooks are unauthenticated; their
// bodies are verified by the provider instead.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(guest.RequireToken(h.tokens))
		r.Post("/intents", h.handleCreate)
		r.Post("/intents/{id}/capture", h.handleCapture)
	})
	r.Post("/webhooks/{provider}", h.handleWebhook)
	return r
}

type createResponse struct {
	Intent      *Intent `json:"intent"`
	RedirectURL string  `json:"redirectUrl"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	intent, res, err := h.svc.CreateIntent(r.Context(), guest.SessionID(r.Context()), req)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{Intent: intent, RedirectURL: res.RedirectURL})
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid intent id")
		return
	}
	intent, err := h.svc.Capture(r.Context(), guest.SessionID(r.Context()), id)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, intent)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(w, r)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "could not read body")
		return
	}
	ev, err := h.svc.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), body, r.Header)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"providerRef": ev.ProviderRef, "status": ev.Status})
}

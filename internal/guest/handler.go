package guest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/servetable/servetable/internal/httputil"
)

// Handler serves guest session endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a guest session handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the guest session routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions", h.handleOpen)
	r.With(RequireToken(h.svc.Tokens())).Get("/session", h.handleGet)
	return r
}

type openRequest struct {
	TableID string `json:"tableId"`
}

type openResponse struct {
	Session *Session `json:"session"`
	Token   string   `json:"token"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	sess, token, err := h.svc.Open(r.Context(), req.TableID)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, openResponse{Session: sess, Token: token})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(r.Context(), SessionID(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

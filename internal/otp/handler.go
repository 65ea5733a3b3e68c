package otp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/servetable/servetable/internal/guest"
	"github.com/servetable/servetable/internal/httputil"
)

// Handler serves the OTP endpoints for an authenticated guest.
type Handler struct {
	engine  *Engine
	tokens  *guest.Tokens
	limiter func(http.Handler) http.Handler
	logger  *slog.Logger
}

// NewHandler creates an OTP handler. limiter may be nil.
func NewHandler(engine *Engine, tokens *guest.Tokens, limiter func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, tokens: tokens, limiter: limiter, logger: logger}
}

// Routes returns the OTP routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.limiter != nil {
		r.Use(h.limiter)
	}
	r.Use(guest.RequireToken(h.tokens))
	r.Post("/send", h.handleSend)
	r.Post("/verify", h.handleVerify)
	return r
}

type sendRequest struct {
	Phone string `json:"phone"`
	Lang  string `json:"lang"`
}

type verifyRequest struct {
	ChallengeID int64  `json:"challengeId"`
	Code        string `json:"code"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Phone == "" {
		httputil.WriteFieldError(w, http.StatusBadRequest, "phone is required", "phone", "required", "phone is required")
		return
	}
	res, err := h.engine.SendOTP(r.Context(), guest.SessionID(r.Context()), req.Phone, req.Lang)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.ChallengeID <= 0 || req.Code == "" {
		httputil.WriteError(w, http.StatusBadRequest, "challengeId and code are required")
		return
	}
	if err := h.engine.VerifyOTP(r.Context(), guest.SessionID(r.Context()), req.ChallengeID, req.Code); err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

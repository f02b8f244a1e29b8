package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/auth"
)

const tokenValidity = time.Hour

// AdminLoginHandler issues a session token for the single admin account.
type AdminLoginHandler struct {
	username     string
	passwordHash string
	jwtSecret    []byte
	log          *zap.SugaredLogger
}

// NewAdminLoginHandler creates a new admin login handler.
func NewAdminLoginHandler(username, passwordHash, jwtSecret string, log *zap.SugaredLogger) *AdminLoginHandler {
	return &AdminLoginHandler{
		username:     username,
		passwordHash: passwordHash,
		jwtSecret:    []byte(jwtSecret),
		log:          log,
	}
}

// AdminLoginRequest is the body for POST /api/admin/login.
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLoginResponse carries the session token.
type AdminLoginResponse struct {
	Token string `json:"token"`
}

// ServeHTTP handles POST /api/admin/login.
func (h *AdminLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, span := tracer.Start(ctx, "admin_login",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if h.passwordHash == "" || len(h.jwtSecret) == 0 {
		http.Error(w, "admin login not configured", http.StatusServiceUnavailable)
		return
	}

	var req AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}

	if req.Username != h.username {
		http.Error(w, auth.ErrBadCredentials.Error(), http.StatusUnauthorized)
		return
	}
	if err := auth.CheckPassword(h.passwordHash, req.Password); err != nil {
		http.Error(w, auth.ErrBadCredentials.Error(), http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(req.Username, h.jwtSecret, tokenValidity)
	if err != nil {
		span.RecordError(err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.log.Infow("admin login", "username", req.Username)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AdminLoginResponse{Token: token})
}

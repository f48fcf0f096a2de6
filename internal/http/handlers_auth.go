package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/service/auth"
)

func userView(user *domain.User) map[string]any {
	return map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"guest":          user.Guest,
		"email_verified": user.EmailVerifiedAt != nil,
	}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.Name, payload.Password)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrEmailTaken) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   userView(user),
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userView(user),
		"tokens": tokens,
	})
}

// handleMagicLinkRequest always answers success so the endpoint cannot be
// used to probe which emails have accounts.
func (r *Router) handleMagicLinkRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.RequestMagicLink(req.Context(), payload.Email); err != nil {
		if errors.Is(err, auth.ErrEmailRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("magic link request failed", "error", err)
	}
	writeResult(w, http.StatusAccepted, true, "if the address is valid, a sign-in link is on its way")
}

func (r *Router) handleMagicLinkRedeem(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	token := strings.TrimSpace(req.URL.Query().Get("token"))
	if token == "" && req.Method == http.MethodPost {
		var payload struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(req.Body).Decode(&payload)
		token = strings.TrimSpace(payload.Token)
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}
	user, tokens, err := r.auth.RedeemMagicLink(req.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userView(user),
		"tokens": tokens,
	})
}

func (r *Router) handleGuest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, tokens, err := r.auth.StartGuest(req.Context())
	if err != nil {
		if errors.Is(err, auth.ErrGuestDisabled) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   userView(user),
		"tokens": tokens,
	})
}

func (r *Router) handleAccount(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for account deletion", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if info.APIKey {
		writeError(w, http.StatusForbidden, "account deletion requires a session token")
		return
	}
	if err := r.auth.DeleteAccount(req.Context(), info.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "account deleted")
}

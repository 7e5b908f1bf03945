package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/getsentry/sentry-go"

	"auth-service/internal/socials"
	"auth-service/internal/token"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service   *Service
	providers *socials.Registry
}

func NewHandler(service *Service, providers *socials.Registry) *Handler {
	return &Handler{service: service, providers: providers}
}

type registerRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordChangeRequest struct {
	Login       string `json:"login"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Login = strings.TrimSpace(body.Login)
	if _, err := mail.ParseAddress(body.Login); err != nil {
		writeError(w, http.StatusBadRequest, "login must be a valid email address")
		return
	}
	if len(body.Password) < 8 || len(body.Password) > 200 {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	_, err := h.service.Register(r.Context(), Registration{
		Login:     body.Login,
		Password:  body.Password,
		FirstName: strings.TrimSpace(body.FirstName),
		LastName:  strings.TrimSpace(body.LastName),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "registration successful, please log in",
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.service.Login(r.Context(), strings.TrimSpace(body.Login), body.Password, r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) AuthorizeProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Get(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		// No code yet: send the caller to the provider's consent screen.
		http.Redirect(w, r, provider.AuthorizationURL(r.URL.Query().Get("state")), http.StatusTemporaryRedirect)
		return
	}

	ident, err := provider.Identity(r.Context(), code)
	if err != nil {
		if errors.Is(err, socials.ErrProviderDenied) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "provider authorization failed")
		return
	}

	pair, err := h.service.AuthorizeProvider(r.Context(), ident, r.UserAgent())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to authorize")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	pair, err := h.service.RefreshTokens(r.Context(), body.RefreshToken, r.UserAgent())
	if err != nil {
		h.writeAuthError(w, err, "failed to refresh tokens")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), accessToken); err != nil {
		h.writeAuthError(w, err, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return
	}

	count, err := h.service.LogoutFromAllDevices(r.Context(), accessToken)
	if err != nil {
		h.writeAuthError(w, err, "failed to logout from all devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"sessions_terminated": count})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return
	}

	valid, err := h.service.ValidateAccessToken(r.Context(), accessToken)
	if err != nil {
		h.writeAuthError(w, err, "failed to validate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return
	}

	history, err := h.service.UserHistory(r.Context(), accessToken)
	if err != nil {
		h.writeAuthError(w, err, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) PasswordChange(w http.ResponseWriter, r *http.Request) {
	var body passwordChangeRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if len(body.NewPassword) < 8 || len(body.NewPassword) > 200 {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	err := h.service.PasswordChange(r.Context(), PasswordUpdate{
		Login:       strings.TrimSpace(body.Login),
		OldPassword: body.OldPassword,
		NewPassword: body.NewPassword,
	})
	if err != nil {
		h.writeAuthError(w, err, "failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password is changed"})
}

func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return
	}

	permissions, err := h.service.UserPermissions(r.Context(), accessToken)
	if err != nil {
		h.writeAuthError(w, err, "failed to load permissions")
		return
	}

	writeJSON(w, http.StatusOK, permissions)
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		writeError(w, http.StatusUnauthorized, "invalid authorization format")
		return "", false
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		writeError(w, http.StatusUnauthorized, "invalid authorization token")
		return "", false
	}
	return tokenStr, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package roles

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"auth-service/internal/access"
	"auth-service/internal/token"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type assignmentRequest struct {
	Login string `json:"login"`
	Role  string `json:"role"`
}

type roleResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	roles, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{Name: role.Name, Description: role.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeRoleError(w, err, "failed to get role")
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{Name: role.Name, Description: role.Description})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accessToken, body, ok := h.decodeRole(w, r)
	if !ok {
		return
	}

	role, err := h.service.Create(r.Context(), accessToken, body.Name, body.Description)
	if err != nil {
		h.writeRoleError(w, err, "failed to create role")
		return
	}

	writeJSON(w, http.StatusCreated, roleResponse{Name: role.Name, Description: role.Description})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	accessToken, body, ok := h.decodeRole(w, r)
	if !ok {
		return
	}

	if err := h.service.Update(r.Context(), accessToken, body.Name, body.Description); err != nil {
		h.writeRoleError(w, err, "failed to update role")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), accessToken, r.PathValue("name")); err != nil {
		h.writeRoleError(w, err, "failed to delete role")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	accessToken, body, ok := h.decodeAssignment(w, r)
	if !ok {
		return
	}

	if err := h.service.Assign(r.Context(), accessToken, body.Login, body.Role); err != nil {
		h.writeRoleError(w, err, "failed to assign role")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "role assigned"})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	accessToken, body, ok := h.decodeAssignment(w, r)
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), accessToken, body.Login, body.Role); err != nil {
		h.writeRoleError(w, err, "failed to revoke role")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "role revoked"})
}

func (h *Handler) decodeRole(w http.ResponseWriter, r *http.Request) (string, roleRequest, bool) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return "", roleRequest{}, false
	}

	var body roleRequest
	if !decodeJSON(w, r, &body) {
		return "", roleRequest{}, false
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "role name is required")
		return "", roleRequest{}, false
	}
	return accessToken, body, true
}

func (h *Handler) decodeAssignment(w http.ResponseWriter, r *http.Request) (string, assignmentRequest, bool) {
	accessToken, ok := bearerToken(w, r)
	if !ok {
		return "", assignmentRequest{}, false
	}

	var body assignmentRequest
	if !decodeJSON(w, r, &body) {
		return "", assignmentRequest{}, false
	}

	body.Login = strings.TrimSpace(body.Login)
	body.Role = strings.TrimSpace(body.Role)
	if body.Login == "" || body.Role == "" {
		writeError(w, http.StatusBadRequest, "login and role are required")
		return "", assignmentRequest{}, false
	}
	return accessToken, body, true
}

func (h *Handler) writeRoleError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, access.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateRole):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrProtectedRole):
		writeError(w, http.StatusForbidden, err.Error())
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

func queryInt(r *http.Request, name string, fallback int) int {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

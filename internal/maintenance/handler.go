package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SessionCleaner purges session rows idle longer than the retention window.
type SessionCleaner interface {
	DeleteExpired(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

// CleanupHandler is an internal endpoint for scheduled invocation. It is
// disabled entirely unless a cron secret is configured.
type CleanupHandler struct {
	sessions         SessionCleaner
	logger           *zap.Logger
	cronSecret       string
	sessionRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	sessions SessionCleaner,
	logger *zap.Logger,
	cronSecret string,
	sessionRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		sessions:         sessions,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		sessionRetention: sessionRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	deleted, err := h.sessions.DeleteExpired(r.Context(), h.sessionRetention, h.batchSize)
	if err != nil {
		h.logger.Error("session_cleanup_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("session_cleanup_completed", zap.Int64("deleted_sessions", deleted))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"deleted_sessions": deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

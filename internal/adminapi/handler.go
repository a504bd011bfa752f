package adminapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"
)

var dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Handler struct {
	store store.AdminStore
}

func NewHandler(st store.AdminStore) *Handler {
	return &Handler{store: st}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/admin/dashboard", h.handleDashboard)
	mux.HandleFunc("/api/admin/branches", h.handleBranches)
	return AuthMiddleware(h.store, mux)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	day := strings.TrimSpace(r.URL.Query().Get("date"))
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	if !dayKeyPattern.MatchString(day) {
		writeError(w, http.StatusBadRequest, "invalid_input", "date must be YYYY-MM-DD")
		return
	}

	summary, err := h.store.DashboardSummary(r.Context(), day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if session, ok := sessionFromContext(r.Context()); ok {
		log.Printf("dashboard day=%s user=%s", day, session.UserID)
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	branches, err := h.store.ListBranches(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, branches)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", "invalid input"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Package httpapi exposes the office over REST and a WebSocket live channel.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"agent_office/internal/config"
	"agent_office/internal/domain"
	"agent_office/internal/telegram"
)

type Office interface {
	Subscribe(id string) (<-chan domain.Envelope, error)
	Unsubscribe(id string)
	HandleClientMessage(raw []byte) error
	Personas() []domain.PersonaView
	Activities(limit int) []domain.Event
	UpdateDeliveryConfig(personaID string, patch domain.DeliveryConfigPatch) (domain.DeliveryConfig, error)
	SetToken(token string) string
	TestDelivery(ctx context.Context, personaID string) error
	Stats(ctx context.Context) domain.Stats
	Deliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
}

type Server struct {
	office Office
	cfg    config.Config
	logger *log.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func New(office Office, cfg config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		office: office,
		cfg:    cfg,
		logger: logger,
		quit:   make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/api/bots", s.handleBots)
	mux.HandleFunc("/api/bots/", s.handleBotByID)
	mux.HandleFunc("/api/activities", s.handleActivities)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/telegram/token", s.handleToken)
	mux.HandleFunc("/api/telegram/test/", s.handleTestDelivery)
	mux.HandleFunc("/api/deliveries", s.handleDeliveries)
	mux.HandleFunc("/ws", s.handleWS)
	return corsMiddleware(s.loggingMiddleware(mux))
}

// CloseSubscribers asks every open WebSocket connection to close. Hijacked
// connections are not covered by http.Server.Shutdown.
func (s *Server) CloseSubscribers() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path": s.cfg.Path,
		"raw":  s.cfg.Raw,
	})
}

func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.office.Personas())
}

func (s *Server) handleBotByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/bots/")
	parts := strings.Split(trimmed, "/")
	personaID := parts[0]
	if personaID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bot id is required"))
		return
	}
	if len(parts) != 2 || parts[1] != "config" {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown route: %s", r.URL.Path))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var patch domain.DeliveryConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	next, err := s.office.UpdateDeliveryConfig(personaID, patch)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": next})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.office.Activities(queryInt(r, "limit", 50)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.office.Stats(r.Context()))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	masked := s.office.SetToken(req.Token)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "masked": masked})
}

func (s *Server) handleTestDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	personaID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/telegram/test/"), "/")
	if personaID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bot id is required"))
		return
	}
	if err := s.office.TestDelivery(r.Context(), personaID); err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadGateway, errors.New(apiErr.Description))
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Test message sent"})
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.office.Deliveries(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPersonaNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTokenMissing), errors.Is(err, domain.ErrDestinationMissing):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

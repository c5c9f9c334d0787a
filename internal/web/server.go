// Package web is the bind-local monitor: a JSON API over the live
// interaction registry and the journal, plus a websocket stream of
// interaction events picked up from the bus.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/config"
	"github.com/mtzanidakis/taskmaster/internal/journal"
	"github.com/mtzanidakis/taskmaster/internal/natsbus"
	"github.com/nats-io/nats.go"
)

type Server struct {
	registry  *broker.Registry
	journal   *journal.Journal
	nats      *natsbus.Client
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time
}

func NewServer(reg *broker.Registry, j *journal.Journal, nc *natsbus.Client, cfg config.WebConfig, version string) *Server {
	return &Server{
		registry:  reg,
		journal:   j,
		nats:      nc,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.subscribeEvents()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/interactions", s.handleInteractions)
	mux.HandleFunc("GET /api/journal", s.handleJournal)
	mux.HandleFunc("GET /api/journal/{id}", s.handleJournalHistory)
	mux.HandleFunc("/api/ws", s.handleWebSocket)

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.cfg.Port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("web monitor listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// subscribeEvents relays interaction events from the bus to connected
// websocket clients.
func (s *Server) subscribeEvents() {
	if s.nats == nil {
		return
	}
	_, err := s.nats.Subscribe(natsbus.TopicEventsInteractions, func(msg *nats.Msg) {
		var ev broker.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		s.hub.Broadcast(Event{Type: "interaction", Payload: ev})
	})
	if err != nil {
		slog.Error("subscribe interaction events failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"pending": s.registry.Len(),
	})
}

func (s *Server) handleInteractions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.registry.Snapshot())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	entries, err := s.journal.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleJournalHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	entries, err := s.journal.History(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tgarchive/internal/metrics"
	"tgarchive/internal/models"
	"tgarchive/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server is the operator-facing admin surface: health, stats, per-chat media
// toggles and a manual stuck-download reset. It serves no archive content.
type Server struct {
	router *mux.Router
	logger *logrus.Logger
	cfg    models.ServerConfig
	store  service.Store
	server *http.Server
}

func NewServer(cfg models.ServerConfig, store service.Store, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		cfg:    cfg,
		store:  store,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats()).Methods(http.MethodGet)
	s.router.HandleFunc("/chats/{chatId}/media", s.handleSetMediaPreference()).Methods(http.MethodPut)
	s.router.HandleFunc("/downloads/reset-stuck", s.handleResetStuck()).Methods(http.MethodPost)
	s.router.HandleFunc("/downloads/requeue-failed", s.handleRequeueFailed()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting admin server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, metrics.GetAllMetrics())
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.store.GetQueueStats(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to read queue stats")
			s.writeError(w, http.StatusInternalServerError, "failed to read queue stats")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"downloads": stats,
		})
	}
}

func (s *Server) handleSetMediaPreference() http.HandlerFunc {
	type request struct {
		Enabled *bool `json:"enabled"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		chatID, err := strconv.ParseInt(mux.Vars(r)["chatId"], 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid chat id")
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			s.writeError(w, http.StatusBadRequest, "body must be {\"enabled\": true|false}")
			return
		}

		if err := s.store.SetMediaDownloadEnabled(r.Context(), chatID, *req.Enabled); err != nil {
			s.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to set media preference")
			s.writeError(w, http.StatusInternalServerError, "failed to update preference")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"enabled": *req.Enabled,
		}).Info("Media download preference updated")
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"chatId":  chatID,
			"enabled": *req.Enabled,
		})
	}
}

func (s *Server) handleResetStuck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxAge := 0
		if raw := r.URL.Query().Get("maxAgeMinutes"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				s.writeError(w, http.StatusBadRequest, "invalid maxAgeMinutes")
				return
			}
			maxAge = parsed
		}

		var count int64
		var err error
		if maxAge > 0 {
			count, err = s.store.ResetStuckDownloads(r.Context(), maxAge)
		} else {
			count, err = s.store.ResetInProgressDownloads(r.Context())
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to reset downloads")
			s.writeError(w, http.StatusInternalServerError, "failed to reset downloads")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{"reset": count})
	}
}

func (s *Server) handleRequeueFailed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := s.store.RequeueFailedDownloads(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to requeue failed downloads")
			s.writeError(w, http.StatusInternalServerError, "failed to requeue downloads")
			return
		}

		if count > 0 {
			s.logger.WithField("count", count).Info("Requeued failed downloads")
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"requeued": count})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

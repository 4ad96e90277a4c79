package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmorland/securepay-backend/internal/infrastructure/config"
)

// Server is the HTTP front of the payment core. Authentication happens
// upstream; requests arrive with the caller's identity in the X-Actor-ID
// header.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(cfg config.ServerConfig, h *Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/users", h.Register)
	mux.HandleFunc("GET /api/v1/users/pending", h.ListPendingUsers)
	mux.HandleFunc("POST /api/v1/users/{id}/approve", h.ApproveUser)
	mux.HandleFunc("POST /api/v1/users/{id}/reject", h.RejectUser)
	mux.HandleFunc("POST /api/v1/users/{id}/balance", h.AdjustBalance)
	mux.HandleFunc("GET /api/v1/users/{id}/velocity", h.VelocitySnapshot)

	mux.HandleFunc("POST /api/v1/payments", h.SubmitPayment)
	mux.HandleFunc("GET /api/v1/transactions/{id}", h.GetTransaction)
	mux.HandleFunc("POST /api/v1/transactions/{id}/override", h.AdminOverride)

	mux.HandleFunc("GET /api/v1/cases", h.ListCases)
	mux.HandleFunc("POST /api/v1/cases/{id}/assign", h.AssignCase)
	mux.HandleFunc("POST /api/v1/cases/{id}/resolve", h.ResolveCase)

	mux.HandleFunc("GET /api/v1/audit", h.AuditTrail)

	mux.HandleFunc("GET /api/v1/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/settings", h.UpdateSettings)

	handler := chain(mux, recoverMiddleware(logger), traceMiddleware(), metricsMiddleware, logMiddleware(logger))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Run serves until ctx is canceled, then drains connections within the
// shutdown timeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

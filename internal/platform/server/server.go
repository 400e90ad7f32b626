package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/auth"
	"github.com/uberfix/fixhooks/internal/flow"
	"github.com/uberfix/fixhooks/internal/inbound"
	"github.com/uberfix/fixhooks/internal/leads"
	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/platform/middleware"
	"github.com/uberfix/fixhooks/internal/webhook"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool             *pgxpool.Pool
	Auth             *auth.TokenService
	InboundReceiver  *inbound.Receiver
	FlowHandler      *flow.Handler
	FlowVerifyToken  string
	LeadsHandler     *leads.Handler
	LeadsVerifyToken string
	NotifyHandler    *notify.Handler
	AuditHandler     *audit.Handler
	// RateLimiter, when set, guards the public webhook routes.
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

type Server struct {
	httpServer *http.Server
	pool       *pgxpool.Pool
	handler    http.Handler
}

func New(addr string, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		pool: deps.Pool,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)

	// Public provider webhooks
	public := func(h http.HandlerFunc) http.Handler {
		if deps.RateLimiter == nil {
			return h
		}
		return deps.RateLimiter.Middleware(h)
	}
	if deps.InboundReceiver != nil {
		mux.Handle("POST /webhooks/twilio/messages", public(deps.InboundReceiver.HandleTwilio))
	}
	if deps.FlowHandler != nil {
		mux.Handle("GET /webhooks/whatsapp/flow", public(webhook.HandleHandshake("whatsapp_flow", deps.FlowVerifyToken)))
		mux.Handle("POST /webhooks/whatsapp/flow", public(deps.FlowHandler.HandleExchange))
	}
	if deps.LeadsHandler != nil {
		mux.Handle("GET /webhooks/meta/leads", public(webhook.HandleHandshake("meta_leads", deps.LeadsVerifyToken)))
		mux.Handle("POST /webhooks/meta/leads", public(deps.LeadsHandler.HandleWebhook))
	}

	// Internal routes require a scoped service token
	if deps.Auth != nil {
		if deps.NotifyHandler != nil {
			mux.Handle("POST /internal/notifications",
				auth.Middleware(deps.Auth, auth.ScopeNotificationsDispatch)(
					http.HandlerFunc(deps.NotifyHandler.HandleDispatch),
				),
			)
		}
		if deps.AuditHandler != nil {
			mux.Handle("GET /internal/audit/events",
				auth.Middleware(deps.Auth, auth.ScopeAuditRead)(
					http.HandlerFunc(deps.AuditHandler.HandleListEvents),
				),
			)
		}
	}

	// Wrap mux with observability middleware
	var handler http.Handler = mux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

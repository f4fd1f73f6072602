// Package gateway exposes the session core to a local UI process: a JSON
// API over gorilla/mux, an SSE feed per session, and an optional fasthttp
// fast path for the high-frequency receipt writes.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"

	"ghostchat/pkg/chat"
	"ghostchat/pkg/config"
	"ghostchat/pkg/logger"
	"ghostchat/pkg/security"
	"ghostchat/pkg/store"
)

// Gateway owns the session registry and the HTTP listeners.
type Gateway struct {
	cfg config.Config
	st  store.Store
	env *security.Envelope

	mu       sync.Mutex
	sessions map[string]*chat.Session

	limiter *limiterPool

	srv     *http.Server
	fastSrv *fasthttp.Server
	ready   func() bool
}

// New builds a Gateway. ready gates /readyz; nil means always ready.
func New(cfg config.Config, st store.Store, env *security.Envelope, ready func() bool) *Gateway {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Gateway{
		cfg:      cfg,
		st:       st,
		env:      env,
		sessions: map[string]*chat.Session{},
		limiter:  newLimiterPool(cfg.Server.SendRPS, cfg.Server.SendBurst),
		ready:    ready,
	}
}

// Router assembles the mux router with all endpoints registered.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", g.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", g.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sessions", g.createSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}", g.closeSession).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{sid}/join", g.joinRoom).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/leave", g.leaveRoom).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/messages", g.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sid}/messages", g.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/voice", g.sendVoice).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/messages/{id}/reactions", g.addReaction).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/messages/{id}/viewed", g.markViewed).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/messages/{id}/played", g.markPlayed).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/messages/{id}/delete-for-me", g.deleteForMe).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/messages/{id}/delete-for-everyone", g.deleteForEveryone).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/delete-for-me", g.deleteManyForMe).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/wipe", g.panicWipe).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sid}/stats", g.sessionStats).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sid}/feed", g.feed).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then drains both listeners and closes
// every session.
func (g *Gateway) Run(ctx context.Context) error {
	g.srv = &http.Server{
		Addr:              g.cfg.Addr(),
		Handler:           g.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gateway_listening", "addr", g.srv.Addr)
		if err := g.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if addr := g.cfg.Server.FastReceiptsAddr; addr != "" {
		g.fastSrv = &fasthttp.Server{Handler: g.fastHandler}
		go func() {
			logger.Info("gateway_fastpath_listening", "addr", addr)
			if err := g.fastSrv.ListenAndServe(addr); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("gateway_serve_failed", "error", err)
		g.shutdown()
		return err
	}
	g.shutdown()
	return nil
}

func (g *Gateway) shutdown() {
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if g.srv != nil {
		if err := g.srv.Shutdown(shCtx); err != nil {
			logger.Warn("gateway_shutdown_error", "error", err)
		}
	}
	if g.fastSrv != nil {
		if err := g.fastSrv.Shutdown(); err != nil {
			logger.Warn("gateway_fastpath_shutdown_error", "error", err)
		}
	}
	g.mu.Lock()
	sessions := g.sessions
	g.sessions = map[string]*chat.Session{}
	g.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	logger.Info("gateway_stopped")
}

// session looks up a registered session by id.
func (g *Gateway) session(sid string) (*chat.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sid]
	return s, ok
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (g *Gateway) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !g.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// Package gateway wires C1 through C8 together behind one HTTP server:
// a static file handler for the browser client and a websocket route
// that hands each connection to its own *client.Client.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/webmux/internal/client"
	"github.com/stellarlinkco/webmux/internal/config"
	"github.com/stellarlinkco/webmux/internal/cron"
	"github.com/stellarlinkco/webmux/internal/dotfiles"
	"github.com/stellarlinkco/webmux/internal/registry"
	"github.com/stellarlinkco/webmux/internal/sysstats"
	"github.com/stellarlinkco/webmux/internal/tmux"
	"github.com/stellarlinkco/webmux/internal/wire"
)

var serverLog = log.New(os.Stderr, "[gateway] ", log.LstdFlags)

// Server is the terminal gateway's top-level process: one HTTP server
// serving the static browser client and accepting one websocket
// connection per browser tab.
type Server struct {
	cfg *config.Config

	mux   *tmux.Adapter
	reg   *registry.Registry
	cron  *cron.Service
	dots  *dotfiles.Store
	stats *sysstats.Collector

	httpServer *http.Server
	nextID     atomic.Int64
}

// New builds a Server with all its collaborators, opening the dotfile
// store and constructing the cron scheduler but not yet starting
// either.
func New(cfg *config.Config) (*Server, error) {
	dots, err := dotfiles.Open(cfg.Dotfiles.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open dotfiles store: %w", err)
	}

	s := &Server{
		cfg:   cfg,
		mux:   tmux.New(cfg.Multiplexer.Binary),
		reg:   registry.New(),
		cron:  cron.NewService(cfg.Cron.StorePath),
		dots:  dots,
		stats: sysstats.New(time.Duration(cfg.Stats.PollIntervalMs) * time.Millisecond),
	}
	return s, nil
}

// Run starts the cron scheduler, the stats collector, and the HTTP
// server, and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.cron.OnJob = s.runCronJob

	if err := s.cron.Start(ctx); err != nil {
		return fmt.Errorf("start cron: %w", err)
	}
	defer s.cron.Stop()

	go s.stats.Run(ctx, func(snap wire.Stats) {
		s.broadcast(wire.MsgStats, snap)
	})

	mux := http.NewServeMux()
	if s.cfg.Gateway.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.Gateway.StaticDir)))
	}
	mux.HandleFunc("/ws", s.handleWS)

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		serverLog.Printf("listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			serverLog.Printf("shutdown error: %v", err)
		}
		return s.dots.Close()
	case err := <-errCh:
		closeErr := s.dots.Close()
		if err != nil {
			return err
		}
		return closeErr
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		serverLog.Printf("accept error: %v", err)
		return
	}

	id := s.nextID.Add(1)
	serverLog.Printf("client %d connected", id)

	col := client.Collaborators{
		Mux:      s.mux,
		Cron:     cron.NewGatewayAdapter(s.cron),
		Dotfiles: s.dots,
		Stats:    s.stats,
	}
	c := client.New(conn, s.reg, s.cfg, col)
	c.Run(r.Context())

	conn.CloseNow()
	serverLog.Printf("client %d disconnected", id)
}

// runCronJob dispatches a fired job's payload to a gateway-side
// action. The closed set of supported messages keeps job payloads
// simple JSON-safe strings rather than arbitrary callbacks.
func (s *Server) runCronJob(job cron.CronJob) (string, error) {
	switch job.Payload.Message {
	case "__internal:stats:broadcast":
		s.broadcast(wire.MsgStats, s.stats.Snapshot())
		return "broadcast ok", nil
	default:
		return "", fmt.Errorf("unknown cron job payload: %q", job.Payload.Message)
	}
}

func (s *Server) broadcast(tag string, v any) {
	payload, err := wire.Encode(tag, v)
	if err != nil {
		serverLog.Printf("encode %s: %v", tag, err)
		return
	}
	s.reg.Broadcast(payload)
}

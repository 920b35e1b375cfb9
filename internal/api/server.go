// Package api serves the published item states and binding management over
// HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/whistlectl/internal/binding"
	"codeberg.org/mutker/whistlectl/internal/engine"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/state"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Bindings lists the resolved bindings
type Bindings interface {
	Snapshot() []binding.Record
}

// Resolver adds and removes bindings. Bindings registered here outlive
// bindings file reloads unless the file defines the same name. A failed
// Register leaves any existing binding of that name in place.
type Resolver interface {
	Register(ctx context.Context, name, raw string) (binding.Record, error)
	Unregister(name string) bool
}

// Refresher triggers refreshes
type Refresher interface {
	RefreshAll(ctx context.Context) engine.Summary
	RefreshBinding(ctx context.Context, name string) (engine.Result, error)
}

type Options struct {
	Items     state.Reader
	Bindings  Bindings
	Resolver  Resolver
	Refresher Refresher
	Debug     bool
}

type Server struct {
	ctx    context.Context
	opts   Options
	router *gin.Engine
	log    logger.Logger
}

// New builds the router. Refresh cycles requested over HTTP run under ctx
// rather than the request context.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Items == nil || opts.Bindings == nil || opts.Resolver == nil || opts.Refresher == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "api server requires items, bindings, resolver and refresher")
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		ctx:  ctx,
		opts: opts,
		log:  logger.New("api"),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.logging())

	router.GET("/healthz", s.health)

	group := router.Group("/api")
	group.GET("/items", s.listItems)
	group.GET("/items/:name", s.getItem)
	group.GET("/bindings", s.listBindings)
	group.PUT("/bindings/:name", s.putBinding)
	group.DELETE("/bindings/:name", s.deleteBinding)
	group.POST("/bindings/:name/refresh", s.refreshBinding)
	group.POST("/refresh", s.refreshAll)

	s.router = router
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errFactory.Wrap(errors.ErrServeHTTP, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API listening")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(errors.ErrServeHTTP, err)
	}

	return nil
}

func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/logger"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Addr string `mapstructure:"addr"`
	// Mode is the gin mode: debug, release or test.
	Mode string `mapstructure:"mode"`
}

type Server struct {
	cfg    Config
	engine *gin.Engine
	l      zerolog.Logger
}

// New builds the admin router. metrics may be nil.
func New(cfg Config, rooms *Rooms, metrics http.Handler, l zerolog.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(l))

	api := r.Group("/")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	api.GET("/healthz", rooms.health)
	rooms.Register(api)

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	return &Server{cfg: cfg, engine: r, l: l}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.l.Info().Str("addr", s.cfg.Addr).Msg("admin server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"cakeday/birthday"
)

// slowRequest is the latency above which requests are logged at warn level.
const slowRequest = 200 * time.Millisecond

// Source provides the scheduler status.
type Source interface {
	Snapshot() birthday.Status
}

type statusResponse struct {
	Running      bool                 `json:"running"`
	Passes       int                  `json:"passes"`
	Skipped      int                  `json:"skipped"`
	LastPass     *birthday.PassReport `json:"last_pass,omitempty"`
	LastError    string               `json:"last_error,omitempty"`
	NextRun      *time.Time           `json:"next_run,omitempty"`
	NextRunHuman string               `json:"next_run_human,omitempty"`
}

// NewRouter returns the gin engine serving /healthz and /status.
func NewRouter(source Source, logger *slog.Logger, now func() time.Time) *gin.Engine {
	if now == nil {
		now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, newStatusResponse(source.Snapshot(), now()))
	})

	return r
}

func newStatusResponse(s birthday.Status, now time.Time) statusResponse {
	resp := statusResponse{
		Running:   s.Running,
		Passes:    s.Passes,
		Skipped:   s.Skipped,
		LastError: s.LastError,
	}
	if s.Passes > 0 {
		last := s.LastPass
		resp.LastPass = &last
	}
	if !s.NextRun.IsZero() {
		next := s.NextRun.UTC()
		resp.NextRun = &next
		resp.NextRunHuman = humanize.RelTime(next, now, "ago", "from now")
	}
	return resp
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		level := slog.LevelDebug
		if latency > slowRequest {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", latency,
		)
	}
}

// Server serves the status endpoints over HTTP.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(addr string, source Source, logger *slog.Logger) *Server {
	logger = logger.With("component", "status")
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(source, logger, nil),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

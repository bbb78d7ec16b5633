package web

import (
	"context"
	"html/template"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/config"
	"github.com/bigredeye/cqa/internal/gateway"
	"github.com/bigredeye/cqa/internal/metrics"
	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/notify"
	static "github.com/bigredeye/cqa/web"
)

const (
	// EventsPath streams build progress to the wait page while a build is not up yet.
	EventsPath = "/__cqa/events"

	waitTemplate = "wait.tmpl"
)

type Router interface {
	Route(ctx context.Context, host string) (*gateway.Decision, error)
	Touch(ctx context.Context, build *models.Build)
}

type Server struct {
	config *config.Config
	logger *zap.Logger
	router Router
	hub    *notify.Hub

	loopback  map[string]struct{}
	blocked   map[string]struct{}
	transport http.RoundTripper
	engine    *gin.Engine
}

func NewServer(config *config.Config, logger *zap.Logger, router Router, hub *notify.Hub) (*Server, error) {
	tmpl, err := template.ParseFS(static.StaticTemplates, "*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to build html templates")
	}

	s := &Server{
		config:    config,
		logger:    logger.Named("web"),
		router:    router,
		hub:       hub,
		loopback:  toSet(config.Server.LoopbackAddresses),
		blocked:   toSet(config.Server.BlockedPaths),
		transport: http.DefaultTransport.(*http.Transport).Clone(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.logger, true))
	r.SetHTMLTemplate(tmpl)

	r.NoRoute(s.rejectSelf, s.handleGateway)

	s.engine = r
	return s, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done and then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	return serve(ctx, s.logger, s.config.Server.ListenAddress, s.engine)
}

func serve(ctx context.Context, logger *zap.Logger, address string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("bind_address", address))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "Server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Stopping server", zap.String("bind_address", address))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "Failed to stop server")
	}
	return nil
}

// RunMetrics serves prometheus metrics until ctx is done.
func RunMetrics(ctx context.Context, address string, m *metrics.Metrics, logger *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.RecoveryWithZap(logger, true))

	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	return serve(ctx, logger.Named("metrics"), address, r)
}

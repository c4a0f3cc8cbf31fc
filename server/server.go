// Package server exposes the inference service over HTTP with gin.
//
//	GET  /            banner
//	GET  /health      liveness and model status
//	GET  /model-info  loaded model description (500 when unready)
//	POST /predict     one prediction (500 when unready, 400 on bad input)
//
// Errors are returned as {"detail": "..."}.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/heartrisk/config"
	"github.com/YuminosukeSato/heartrisk/inference"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// Server is the HTTP front of an inference.Service.
type Server struct {
	cfg    config.ServerConfig
	svc    *inference.Service
	engine *gin.Engine
	logger log.Logger
}

// New builds the router. It fails when the CORS settings are inconsistent.
func New(cfg config.ServerConfig, svc *inference.Service, logger log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.GetLoggerWithName("server")
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.Use(requestID(), accessLog(logger), recovery(logger))

	if len(cfg.CORSOrigins) > 0 {
		corsCfg := cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		if err := corsCfg.Validate(); err != nil {
			return nil, errors.NewConfigurationError("server.cors_origins", err)
		}
		engine.Use(cors.New(corsCfg))
	}

	s := &Server{cfg: cfg, svc: svc, engine: engine, logger: logger}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.root)
	s.engine.GET("/health", s.health)
	s.engine.GET("/model-info", s.modelInfo)
	s.engine.POST("/predict", s.predict)
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Detail: "Not Found"})
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "address", srv.Addr, "model", s.svc.Health().Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

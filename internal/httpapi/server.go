package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/store"
	"github.com/synapsedb/synapse/pkg/config"
)

var log = logging.GetLogger("httpapi")

// Server is the optional operational HTTP surface: /healthz and /metrics
// only, gated by config.HTTPConfig.Enabled.
type Server struct {
	router     *gin.Engine
	st         *store.Store
	cfg        config.HTTPConfig
	threshold  float64
	httpServer *http.Server
}

// NewServer builds the router. saturationThreshold mirrors the Tool
// Protocol Layer's pool-saturation alert bound (§4.7/§5).
func NewServer(st *store.Store, cfg config.HTTPConfig, saturationThreshold float64) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.CORS {
		router.Use(cors.New(cors.Config{
			AllowMethods:    []string{"GET"},
			AllowHeaders:    []string{"Origin", "Accept"},
			AllowAllOrigins: true,
			MaxAge:          12 * time.Hour,
		}))
	}

	s := &Server{router: router, st: st, cfg: cfg, threshold: saturationThreshold}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", s.metrics)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.st.PoolStats(s.threshold))
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting operational HTTP server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", "error", err)
			return err
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}
}

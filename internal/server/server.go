package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsedeck-lab/pulsedeck/internal/families"
)

// Server hosts the dashboard query API plus a health endpoint that verifies
// connectivity to the counter store.
type Server struct {
	Engine   *gin.Engine
	Addr     string
	db       *sql.DB
	families families.Repository
}

func New(addr string, db *sql.DB, familyRepo families.Repository, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine:   r,
		Addr:     addr,
		db:       db,
		families: familyRepo,
	}

	r.GET("/health", s.healthHandler)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("Health check failed: counter store unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "counter store unreachable",
			})
			return
		}
	}

	familyCount := 0
	if s.families != nil {
		familyCount = len(s.families.List())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"counter_store": "connected",
		"families":      familyCount,
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

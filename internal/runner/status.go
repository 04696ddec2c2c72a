package runner

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Routes builds the live status surface: a health probe, a JSON status
// view of the in-flight run, and the Prometheus exposition endpoint.
func (r *Runner) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"profile":        r.profile.Name,
			"active_vus":     r.ActiveVUs(),
			"iterations":     r.Iterations(),
			"transactions":   r.reg.Transactions(),
			"errors":         r.reg.Errors(),
			"success_rate":   r.reg.SuccessRate(),
			"uptime_seconds": time.Since(r.started).Seconds(),
		})
	})

	router.GET("/metrics", gin.WrapH(r.reg.Handler()))

	return router
}

// ServeStatus starts the status server on addr in the background and
// returns it for shutdown. Serve errors other than a clean close are
// logged, never fatal; the status surface is an observer of the run.
func (r *Runner) ServeStatus(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.WithError(err).Error("status server stopped")
		}
	}()
	r.log.WithField("addr", addr).Info("status server listening")
	return srv
}

// ShutdownStatus stops the status server with a short grace period.
func ShutdownStatus(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

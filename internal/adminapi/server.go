// Package adminapi exposes a read-only HTTP view of the Clients an
// agentprobe process is supervising, for dashboards and health checks.
// Grounded on cmd/zmux-server/main.go's router setup (gin.Recovery,
// ZapLogger middleware, dev-only CORS) trimmed to GET-only routes since
// mutation of a Client's lifecycle is a programmatic, not an HTTP,
// concern here (spec.md never proposes an HTTP control surface).
package adminapi

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ejudge-sh/agent-client/internal/agentclient"
)

// Registry is the subset of agentprobe's client bookkeeping the admin
// API needs; satisfied by a simple map guarded by the caller.
type Registry interface {
	// Clients returns a snapshot of all known clients keyed by ID.
	Clients() map[string]*agentclient.Client
}

// ZapLogger is gin middleware that logs each request through a
// structured logger. Identical in shape to cmd/zmux-server/main.go's
// ZapLogger, reused verbatim since request logging has no domain-specific
// content to adapt.
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// NewRouter builds the admin API's gin.Engine: GET /healthz, GET
// /clients, GET /clients/:id.
func NewRouter(reg Registry, log *zap.Logger) *gin.Engine {
	log = log.Named("adminapi")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if os.Getenv("ENV") == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins: []string{"http://localhost:5173"},
			AllowMethods: []string{"GET", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.Use(ZapLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/clients", func(c *gin.Context) {
		clients := reg.Clients()
		out := make([]gin.H, 0, len(clients))
		for id, cl := range clients {
			out = append(out, gin.H{
				"id":      id,
				"pending": cl.Pending(),
				"closed":  cl.IsClosed(),
			})
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/clients/:id", func(c *gin.Context) {
		clients := reg.Clients()
		cl, ok := clients[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "client not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":      cl.ID(),
			"pending": cl.Pending(),
			"closed":  cl.IsClosed(),
		})
	})

	return r
}

// Serve builds an http.Server wrapping router and returns it without
// starting it; the caller runs ListenAndServe and handles shutdown. Mirrors cmd/zmux-server/main.go's explicit
// http.Server construction (timeouts, header cap, zap-backed ErrorLog)
// rather than the bare r.Run() shortcut.
func Serve(addr string, router *gin.Engine, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}
}

package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/tokencore/internal/auth"
	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/dispatch"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusSource reports supervisor state; *device.Supervisor satisfies it.
type StatusSource interface {
	Status() device.Status
}

// AdminConfig configures the read-only admin HTTP surface.
type AdminConfig struct {
	App         string
	Version     string
	CorsOrigins []string
	Routes      []dispatch.RouteInfo
	// Token, when set, is required as a bearer token on every route except
	// /health and /ready.
	Token string
}

type routeView struct {
	Class       string `json:"cla"`
	Instruction string `json:"ins"`
	Name        string `json:"name"`
}

// NewAdminRouter builds the gin engine serving /health, /ready, /status,
// /routes and /metrics.
func NewAdminRouter(src StatusSource, cfg AdminConfig) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	if cfg.Token != "" {
		r.Use(auth.Middleware(auth.StaticToken{Token: cfg.Token}, "/health", "/ready"))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	routes := make([]routeView, 0, len(cfg.Routes))
	for _, ri := range cfg.Routes {
		routes = append(routes, routeView{
			Class:       fmt.Sprintf("%02X", ri.Route.Class),
			Instruction: fmt.Sprintf("%02X", ri.Route.Instruction),
			Name:        ri.Name,
		})
	}
	started := time.Now()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"service": cfg.App,
			"version": cfg.Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		st := src.Status()
		ready := st.SessionID != "" && st.State != device.StateStopped.String()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"state":   st.State,
			"session": st.SessionID,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})

	r.GET("/routes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"routes": routes})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeAdmin serves handler on addr until ctx is cancelled.
func ServeAdmin(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observability: admin listen %s: %w", addr, err)
	}
	return ServeAdminListener(ctx, ln, handler)
}

func ServeAdminListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("observability.ServeAdmin listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("observability: admin shutdown: %w", err)
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

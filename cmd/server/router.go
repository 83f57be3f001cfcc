package main

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/api"
	"github.com/wuwenbin0122/agent-platform/internal/middleware"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

func newRouter(cfg *utils.Config, logger *zap.Logger, handler *api.Handler, redisClient *redis.Client) http.Handler {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.Recovery(logger),
		middleware.RequestLogger(logger.Named("http")),
		otelgin.Middleware(cfg.App.Name),
		cors.New(corsConfig(cfg.CORS)),
	)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewLimiter(redisClient, cfg.RateLimit.PerMinute, logger)
		router.Use(middleware.RateLimit(limiter, logger))
	}
	router.Use(middleware.BodyLimit(cfg.Upload.MaxFileSize))

	handler.RegisterRoutes(router)

	return withCompression(router, logger)
}

func corsConfig(c utils.CORSConfig) cors.Config {
	conf := cors.Config{
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		AllowCredentials: c.AllowCredentials,
	}
	if len(conf.AllowMethods) == 0 || containsWildcard(conf.AllowMethods) {
		conf.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(conf.AllowHeaders) == 0 || containsWildcard(conf.AllowHeaders) {
		conf.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	}

	if len(c.AllowedOrigins) == 0 || containsWildcard(c.AllowedOrigins) {
		conf.AllowOriginFunc = func(string) bool { return true }
	} else {
		conf.AllowOrigins = c.AllowedOrigins
	}
	return conf
}

func containsWildcard(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "*" {
			return true
		}
	}
	return false
}

// withCompression gzips responses of at least 1000 bytes. Event streams and
// websocket upgrades pass through untouched.
func withCompression(next http.Handler, logger *zap.Logger) http.Handler {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(1000),
		gzhttp.ExceptContentTypes([]string{"text/event-stream"}),
	)
	if err != nil {
		logger.Warn("gzip disabled", zap.Error(err))
		return next
	}

	compressed := wrap(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

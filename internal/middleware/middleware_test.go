package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limitedRouter(limiter Limiter) *gin.Engine {
	router := gin.New()
	router.Use(RateLimit(limiter, zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func doGet(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRedisLimiterRejectsOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client, 2)
	limiter.now = func() time.Time { return time.Unix(120, 0) }
	router := limitedRouter(limiter)

	require.Equal(t, http.StatusOK, doGet(router, "/ping").Code)
	require.Equal(t, http.StatusOK, doGet(router, "/ping").Code)

	rec := doGet(router, "/ping")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	require.True(t, mr.Exists("ratelimit:10.0.0.1:2"))
	require.Equal(t, "3", mustGet(t, mr, "ratelimit:10.0.0.1:2"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	value, err := mr.Get(key)
	require.NoError(t, err)
	return value
}

func TestMemoryLimiterResetsEachWindow(t *testing.T) {
	limiter := NewMemoryLimiter(1)
	current := time.Unix(0, 0)
	limiter.now = func() time.Time { return current }

	allowed, _, _ := limiter.Allow(context.Background(), "a")
	require.True(t, allowed)
	allowed, retry, _ := limiter.Allow(context.Background(), "a")
	require.False(t, allowed)
	require.Equal(t, time.Minute, retry)

	allowed, _, _ = limiter.Allow(context.Background(), "b")
	require.True(t, allowed)

	current = current.Add(time.Minute)
	allowed, _, _ = limiter.Allow(context.Background(), "a")
	require.True(t, allowed)
}

func TestLimiterFallsBackWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	router := limitedRouter(NewLimiter(client, 1, nil))

	require.Equal(t, http.StatusOK, doGet(router, "/ping").Code)
	require.Equal(t, http.StatusTooManyRequests, doGet(router, "/ping").Code)
}

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodyLimit(8))
	router.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"message":"far too long"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLoggerAndRecovery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	router := gin.New()
	router.Use(RequestLogger(logger), Recovery(logger))
	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	rec := doGet(router, "/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"message":"Internal server error"`)
	require.Contains(t, rec.Body.String(), "kaboom")

	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	require.EqualValues(t, http.StatusInternalServerError, entries[0].ContextMap()["status"])
}

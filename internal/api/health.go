package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultProbeTimeout = 5 * time.Second

func (h *Handler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.cfg.App.Name + " API",
		"version": h.cfg.App.Version,
		"docs":    "/docs",
		"status":  "running",
	})
}

type routeDoc struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// handleDocs lists the routes registered on router, sorted by path.
func (h *Handler) handleDocs(router *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos := router.Routes()
		routes := make([]routeDoc, 0, len(infos))
		for _, info := range infos {
			routes = append(routes, routeDoc{Method: info.Method, Path: info.Path})
		}
		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})

		c.JSON(http.StatusOK, gin.H{
			"title":   h.cfg.App.Name + " API",
			"version": h.cfg.App.Version,
			"routes":  routes,
		})
	}
}

// handleHealth always answers 200; each dependency reports its own flag.
func (h *Handler) handleHealth(c *gin.Context) {
	timeout := h.cfg.Timeouts.HTTP
	if timeout <= 0 || timeout > defaultProbeTimeout {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	var database, vectorDB, llmService, cache bool
	var g errgroup.Group
	g.Go(func() error { database = h.runProbe(ctx, "database", h.probes.Database); return nil })
	g.Go(func() error { vectorDB = h.runProbe(ctx, "vector_db", h.probes.VectorDB); return nil })
	g.Go(func() error { llmService = h.runProbe(ctx, "llm_service", h.probes.LLM); return nil })
	g.Go(func() error { cache = h.runProbe(ctx, "cache", h.probes.Cache); return nil })
	_ = g.Wait()

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"version":     h.cfg.App.Version,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"database":    database,
		"vector_db":   vectorDB,
		"llm_service": llmService,
		"cache":       cache,
		"connections": h.conns.Count(),
	})
}

func (h *Handler) runProbe(ctx context.Context, name string, probe Probe) (healthy bool) {
	if probe == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("health probe panicked", zap.String("probe", name), zap.String("panic", fmt.Sprint(r)))
			healthy = false
		}
	}()

	ok, err := probe(ctx)
	if err != nil {
		h.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
		return false
	}
	return ok
}

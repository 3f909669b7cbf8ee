package rest

import (
	"time"

	"github.com/AzielCF/az-track/core/config"
	"github.com/AzielCF/az-track/infrastructure/roblox"
	"github.com/AzielCF/az-track/pkg/worker"
	"github.com/AzielCF/az-track/tracker/application"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

type MonitoringHandler struct {
	stats   *application.Stats
	batcher *roblox.Batcher
	gate    *roblox.Gate
	pool    *worker.Pool
	runtime *config.RuntimeStore
	started time.Time
}

// InitRestMonitoring registers the pipeline observability endpoints.
func InitRestMonitoring(
	app fiber.Router,
	stats *application.Stats,
	batcher *roblox.Batcher,
	gate *roblox.Gate,
	pool *worker.Pool,
	runtime *config.RuntimeStore,
) {
	h := &MonitoringHandler{
		stats:   stats,
		batcher: batcher,
		gate:    gate,
		pool:    pool,
		runtime: runtime,
		started: time.Now(),
	}

	g := app.Group("/monitoring")
	g.Get("/stats", h.GetStats)
	g.Get("/worker-pool", h.GetWorkerPoolStats)
	g.Get("/runtime", h.GetRuntime)
	g.Get("/config", h.GetConfig)
}

func (h *MonitoringHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"started":         humanize.Time(h.started),
		"uptime":          time.Since(h.started).Round(time.Second).String(),
		"pipeline":        h.stats.Snapshot(),
		"batching":        h.batcher.Metrics(),
		"gate_tokens":     h.gate.Tokens(),
	})
}

func (h *MonitoringHandler) GetWorkerPoolStats(c *fiber.Ctx) error {
	return c.JSON(h.pool.GetStats())
}

func (h *MonitoringHandler) GetRuntime(c *fiber.Ctx) error {
	rt := h.runtime.Current()
	return c.JSON(fiber.Map{
		"poll_interval": rt.PollInterval.String(),
		"batch_linger":  rt.BatchLinger.String(),
	})
}

func (h *MonitoringHandler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(config.GetAllSettings())
}

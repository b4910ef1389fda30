// Package app wires the whole engine together: configuration, bus, workflow
// manager, providers, agents, archive, metrics, and the API server. It is the
// composition root; nothing below this package knows how the pieces connect.
package app

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkharmony/inkharmony/pkg/agents"
	"github.com/inkharmony/inkharmony/pkg/api"
	"github.com/inkharmony/inkharmony/pkg/archive"
	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/config"
	"github.com/inkharmony/inkharmony/pkg/events"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/metrics"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// Container holds the fully wired engine.
type Container struct {
	Config    *config.Config
	Bus       *bus.MessageBus
	Books     *workflow.Manager
	Collector *metrics.Collector
	Registry  *prometheus.Registry
	Archive   *archive.Archive
	Server    *api.Server

	handlers []agents.Handler
	wg       sync.WaitGroup
}

// New builds the container from configuration. Generation backends are only
// constructed when their API keys are present; without them the maestro runs
// with structured fallbacks and workers reject generation tasks.
func New(cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	c := &Container{
		Config:   cfg,
		Bus:      bus.New(),
		Books:    workflow.NewManager(cfg.StorageDir, cfg.Phases),
		Registry: prometheus.NewRegistry(),
	}
	c.Collector = metrics.NewCollector(c.Registry)

	retry := providers.RetryConfig(cfg.Retry)

	var text providers.Completer
	if cfg.Providers.AnthropicAPIKey != "" {
		text = providers.NewAnthropicProvider(cfg.Providers.AnthropicAPIKey, cfg.Providers.AnthropicModel)
	} else {
		logger.WarnC("app", "no anthropic api key: text generation disabled")
	}
	var images providers.ImageGenerator
	if cfg.Providers.OpenAIAPIKey != "" {
		images = providers.NewOpenAIImageProvider(cfg.Providers.OpenAIAPIKey, cfg.Providers.ImageModel)
	} else {
		logger.WarnC("app", "no openai api key: image generation disabled")
	}

	c.handlers = []agents.Handler{
		agents.NewMaestro(c.Bus, c.Books, text, retry),
		agents.NewOutlineWorker(c.Bus, c.Books, text, retry),
		agents.NewNarrativeWorker(c.Bus, c.Books, text, retry),
		agents.NewLinguisticWorker(c.Bus, c.Books, text, retry),
		agents.NewVisualWorker(c.Bus, c.Books, images, retry),
	}

	if cfg.Archive.Enabled {
		a, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, err
		}
		c.Archive = a
	}

	c.Server = api.NewServer(cfg, c.Bus, c.Books, c.Collector, c.Registry)

	// Workflow lifecycle transitions feed the WebSocket stream and the phase
	// duration histogram.
	c.Books.SetObserver(func(e events.Event) {
		c.Server.Publish(e)
		if e.Type == events.PhaseCompleted {
			if data, ok := e.Data.(events.WorkflowEventData); ok {
				c.Collector.ObservePhaseDuration(data.DurationSeconds)
			}
		}
	})
	return c, nil
}

// Start launches the agent loops, the observers, and the API server.
func (c *Container) Start(ctx context.Context) error {
	c.Collector.Watch(c.Bus.Subscribe("metrics"))
	if c.Archive != nil {
		c.Archive.Follow(c.Bus.Subscribe("archive"))
	}

	for _, h := range c.handlers {
		h := h
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			agents.Run(ctx, c.Bus, h)
		}()
	}

	if err := c.Server.Start(ctx); err != nil {
		return err
	}
	c.Server.Publish(events.New(events.SystemStarted, "app", nil))
	return nil
}

// Stop shuts everything down in dependency order: API first, then the bus
// (which stops the agents and drains the taps), then the archive.
func (c *Container) Stop() {
	c.Server.Publish(events.New(events.SystemStopping, "app", nil))
	if err := c.Server.Stop(); err != nil {
		logger.WarnCF("app", "server shutdown", map[string]interface{}{"error": err.Error()})
	}
	c.Bus.Close()
	c.wg.Wait()
	c.Collector.Wait()
	if c.Archive != nil {
		if err := c.Archive.Close(); err != nil {
			logger.WarnCF("app", "archive close", map[string]interface{}{"error": err.Error()})
		}
	}
	logger.InfoC("app", "engine stopped")
}

// File: internal/service/components.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/decision"
	"github.com/droidpilot/droidpilot-cli/internal/device"
	"github.com/droidpilot/droidpilot-cli/internal/llmclient"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
	"github.com/droidpilot/droidpilot-cli/internal/orchestrator"
	"github.com/droidpilot/droidpilot-cli/internal/perception"
)

// Components holds the long-lived dependencies shared by every task run:
// the model router, the vision client, and the device registry. Task-scoped
// pieces (decision agent, actuator, orchestrator) are built per run.
type Components struct {
	cfg      *config.Config
	router   schemas.LLMClient
	vision   schemas.LLMClient
	registry *device.Registry
	logger   *zap.Logger
}

func NewComponents(cfg *config.Config) (*Components, error) {
	logger := observability.GetLogger().Named("service")
	router, err := llmclient.NewRouterFromConfig(cfg.Agent.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("building model router: %w", err)
	}
	vision, err := llmclient.NewVisionClientFromConfig(cfg.Agent.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("building vision client: %w", err)
	}
	return &Components{
		cfg:      cfg,
		router:   router,
		vision:   vision,
		registry: device.NewRegistry(cfg.Device),
		logger:   logger,
	}, nil
}

// Registry exposes the device registry for status endpoints.
func (c *Components) Registry() *device.Registry { return c.registry }

// StartRun acquires the device, assembles the per-run agent pair, and
// launches the orchestrator. The device lease is released when the run's
// terminal event has been emitted. ctx should outlive the run; it is the
// process context, not a request context.
func (c *Components) StartRun(ctx context.Context, text string, mode schemas.Mode, serial string) (*orchestrator.Run, error) {
	lease, err := c.registry.Acquire(ctx, serial)
	if err != nil {
		return nil, err
	}

	agent := decision.NewAgent(c.router, c.cfg.Agent, mode)
	actuator := perception.NewActuator(lease.Device, c.vision, c.cfg.Device)
	orch := orchestrator.New(agent, actuator, c.cfg.Agent)

	task := orchestrator.Task{
		Text:         text,
		Mode:         mode,
		DeviceSerial: lease.Device.Serial(),
	}
	run := orch.Start(ctx, task, orchestrator.WithCleanup(lease.Release))
	c.logger.Info("Task run started",
		zap.String("task_id", run.Task.ID),
		zap.String("mode", string(mode)),
		zap.String("serial", task.DeviceSerial))
	return run, nil
}

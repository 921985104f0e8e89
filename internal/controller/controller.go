// Package controller runs one failover-control invocation end to end:
// topology discovery, the probe aggregation window, the decision engine,
// and the resulting route steering or alerting.
package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/alert"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/decision"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/metrics"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/probe"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/topology"
)

// Discoverer resolves the run's topology.
type Discoverer interface {
	Discover(ctx context.Context) (*topology.Topology, error)
}

// Aggregator produces the per-role health verdicts.
type Aggregator interface {
	Aggregate(ctx context.Context) (probe.Verdicts, error)
}

// Updater steers HA routes to a role and reports tables written.
type Updater interface {
	Redirect(ctx context.Context, topo *topology.Topology, target appliance.Role) (int, error)
}

// Result summarises one invocation.
type Result struct {
	RunID         string
	Verdicts      probe.Verdicts
	Action        decision.Action
	ChangedTables int
}

// Controller wires one invocation together. It holds no state between
// runs; everything is recomputed from the control plane each time.
type Controller struct {
	policy     decision.Policy
	discoverer Discoverer
	aggregator Aggregator
	updater    Updater
	notifier   alert.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New creates a controller.
func New(policy decision.Policy, d Discoverer, a Aggregator, u Updater, n alert.Notifier, m *metrics.Metrics, logger *zap.Logger) *Controller {
	return &Controller{
		policy:     policy,
		discoverer: d,
		aggregator: a,
		updater:    u,
		notifier:   n,
		metrics:    m,
		logger:     logger,
	}
}

// Run executes one invocation. Discovery failures abort before any probe
// or mutation; the decision is evaluated exactly once, after the
// aggregation window completes.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID))

	topo, err := c.discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	verdicts, err := c.aggregator.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	action := decision.Decide(verdicts, c.policy)
	c.metrics.RecordDecision(action.String())
	logger.Info("decision",
		zap.Bool("primary_down", verdicts.PrimaryDown),
		zap.Bool("secondary_down", verdicts.SecondaryDown),
		zap.Stringer("action", action))

	result := &Result{RunID: runID, Verdicts: verdicts, Action: action}

	switch action {
	case decision.ActionFailover:
		result.ChangedTables, err = c.updater.Redirect(ctx, topo, appliance.RoleSecondary)
		if err != nil {
			return result, fmt.Errorf("controller: failover: %w", err)
		}
	case decision.ActionFailback:
		result.ChangedTables, err = c.updater.Redirect(ctx, topo, appliance.RolePrimary)
		if err != nil {
			return result, fmt.Errorf("controller: failback: %w", err)
		}
	case decision.ActionAlertOnly:
		logger.Error("both appliances down, manual recovery required")
		if c.notifier != nil {
			c.notifier.Notify(ctx, fmt.Sprintf(
				"NVA HA: both appliances failed health aggregation (run %s). No route changes made; manual recovery required.", runID))
		}
	case decision.ActionNone:
		logger.Info("no action taken, automatic handling disabled for this condition")
	}

	logger.Info("run complete",
		zap.Stringer("action", action),
		zap.Int("changed_tables", result.ChangedTables))
	return result, nil
}

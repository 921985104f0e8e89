package probe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/clock"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/metrics"
)

// Verdicts is the aggregated health outcome of one window. Created fresh
// each run; never persisted.
type Verdicts struct {
	PrimaryDown   bool
	SecondaryDown bool
}

// Down reports the verdict for a role.
func (v Verdicts) Down(r appliance.Role) bool {
	if r == appliance.RolePrimary {
		return v.PrimaryDown
	}
	return v.SecondaryDown
}

// Aggregator repeats probes over a fixed window and produces one verdict
// per role. The policy is all-or-nothing: a role is down only if every
// sample in the window was down, so transient blips never trigger a
// failover. Both roles are probed in the same iteration to keep their
// windows time-aligned.
type Aggregator struct {
	prober  Prober
	tries   int
	delay   time.Duration
	clk     clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAggregator creates an aggregator over the given window.
func NewAggregator(prober Prober, tries int, delay time.Duration, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Aggregator {
	return &Aggregator{prober: prober, tries: tries, delay: delay, clk: clk, metrics: m, logger: logger}
}

// Aggregate runs the window. The delay is observed after every iteration
// including the last, so total wall time is tries * delay. Context
// cancellation aborts between samples.
func (a *Aggregator) Aggregate(ctx context.Context) (Verdicts, error) {
	var primaryDown, secondaryDown int

	for i := 0; i < a.tries; i++ {
		for _, role := range []appliance.Role{appliance.RolePrimary, appliance.RoleSecondary} {
			err := a.prober.Probe(ctx, role)
			a.metrics.RecordProbe(role.String(), err == nil)
			if err != nil {
				if role == appliance.RolePrimary {
					primaryDown++
				} else {
					secondaryDown++
				}
				a.logger.Info("probe down",
					zap.Stringer("role", role),
					zap.Int("try", i+1),
					zap.Int("tries", a.tries),
					zap.Error(err))
			} else {
				a.logger.Debug("probe up", zap.Stringer("role", role), zap.Int("try", i+1))
			}
		}

		if a.delay > 0 {
			select {
			case <-ctx.Done():
				return Verdicts{}, ctx.Err()
			case <-a.clk.After(a.delay):
			}
		}
	}

	v := Verdicts{
		PrimaryDown:   primaryDown == a.tries,
		SecondaryDown: secondaryDown == a.tries,
	}
	a.logger.Info("aggregation window complete",
		zap.Int("tries", a.tries),
		zap.Int("primary_down_samples", primaryDown),
		zap.Int("secondary_down_samples", secondaryDown),
		zap.Bool("primary_down", v.PrimaryDown),
		zap.Bool("secondary_down", v.SecondaryDown))
	return v, nil
}

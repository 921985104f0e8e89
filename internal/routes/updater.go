// Package routes rewrites the next hop of HA-managed routes across every
// tagged route table in every subscription in scope. The rewrite is
// idempotent: a table whose eligible routes already point at the target
// role is never written.
package routes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	retry "github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/alert"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/metrics"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/topology"
)

// HANameSuffix marks a route as HA-managed. Routes without the suffix
// are never touched regardless of their next hop; this is a wire-level
// contract with the surrounding infrastructure.
const HANameSuffix = "HA"

// NextHopVirtualAppliance is the next-hop type every rewritten route is
// pinned to.
const NextHopVirtualAppliance = "VirtualAppliance"

// UDRTagName is the resource tag key marking managed route tables.
const UDRTagName = "nva_ha_udr"

// ErrConflict reports that a route table changed between read and write.
// The store returns it on an etag mismatch; the updater re-reads the
// table and retries a bounded number of times.
var ErrConflict = errors.New("routes: table changed between read and write")

// TableRef identifies one route table.
type TableRef struct {
	SubscriptionID string
	ResourceGroup  string
	Name           string
}

func (r TableRef) String() string {
	return r.SubscriptionID + "/" + r.ResourceGroup + "/" + r.Name
}

// Route is one entry of a route table.
type Route struct {
	Name          string
	AddressPrefix string
	NextHopType   string
	NextHopIP     string
}

// Table is a route table snapshot. Etag is the version observed at read
// time and guards the write.
type Table struct {
	Ref    TableRef
	Etag   string
	Routes []Route
}

// TableStore is the control-plane surface the updater mutates route
// tables through. UpdateTable replaces the whole table, conditional on
// the snapshot's etag, and returns ErrConflict when the table moved.
type TableStore interface {
	ListTaggedTables(ctx context.Context, subscriptionID string) ([]TableRef, error)
	GetTable(ctx context.Context, ref TableRef) (*Table, error)
	UpdateTable(ctx context.Context, table *Table) error
}

const defaultWriteAttempts = 3

// Updater scans tagged route tables and steers HA routes to one role.
type Updater struct {
	store    TableStore
	notifier alert.Notifier
	metrics  *metrics.Metrics
	attempts uint
	logger   *zap.Logger
}

// NewUpdater creates an updater. notifier may be nil when no alerting is
// wired.
func NewUpdater(store TableStore, notifier alert.Notifier, m *metrics.Metrics, logger *zap.Logger) *Updater {
	return &Updater{
		store:    store,
		notifier: notifier,
		metrics:  m,
		attempts: defaultWriteAttempts,
		logger:   logger,
	}
}

// Redirect steers every HA-managed route to the target role's interface
// set and returns the number of tables written. Failover direction
// (target secondary) emits an alert per subscription processed; failback
// and steady-state runs are silent.
func (u *Updater) Redirect(ctx context.Context, topo *topology.Topology, target appliance.Role) (int, error) {
	changed := 0
	for _, sub := range topo.Subscriptions {
		refs, err := u.store.ListTaggedTables(ctx, sub)
		if err != nil {
			return changed, fmt.Errorf("routes: list tagged tables in %s: %w", sub, err)
		}
		u.logger.Info("scanning subscription",
			zap.String("subscription", sub),
			zap.Int("tables", len(refs)),
			zap.Stringer("target", target))

		subChanged := 0
		for _, ref := range refs {
			wrote, err := u.redirectTable(ctx, ref, topo, target)
			if err != nil {
				return changed, err
			}
			if wrote {
				changed++
				subChanged++
			}
		}

		if target == appliance.RoleSecondary && u.notifier != nil {
			u.notifier.Notify(ctx, fmt.Sprintf(
				"NVA HA: failover to secondary executed in subscription %s (%d of %d tagged route tables updated)",
				sub, subChanged, len(refs)))
		}
	}
	return changed, nil
}

// redirectTable performs one read-modify-write cycle, retrying on etag
// conflict with a fresh read each attempt.
func (u *Updater) redirectTable(ctx context.Context, ref TableRef, topo *topology.Topology, target appliance.Role) (bool, error) {
	wrote, err := retry.DoWithData(
		func() (bool, error) {
			table, err := u.store.GetTable(ctx, ref)
			if err != nil {
				return false, fmt.Errorf("routes: get table %s: %w", ref, err)
			}

			mutated := u.rewriteRoutes(table, topo, target)
			if mutated == 0 {
				u.logger.Info("table already points at target, skipping write", zap.Stringer("table", ref))
				return false, nil
			}

			if err := u.store.UpdateTable(ctx, table); err != nil {
				if errors.Is(err, ErrConflict) {
					u.metrics.RecordWriteConflict()
					u.logger.Warn("route table changed underneath us, retrying", zap.Stringer("table", ref))
				}
				return false, err
			}
			u.metrics.RecordTableWritten()
			u.logger.Info("route table updated",
				zap.Stringer("table", ref),
				zap.Int("routes_changed", mutated),
				zap.Stringer("target", target))
			return true, nil
		},
		retry.Attempts(u.attempts),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrConflict) }),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("routes: update table %s: %w", ref, err)
	}
	return wrote, nil
}

// rewriteRoutes mutates the snapshot in place and returns the number of
// routes changed. Eligibility: the route name carries the HA suffix and
// its current next hop is one of the pair's interface IPs; primary and
// secondary interfaces pair by index.
func (u *Updater) rewriteRoutes(table *Table, topo *topology.Topology, target appliance.Role) int {
	targetIPs := topo.IPs(target)
	mutated := 0

	for i := range table.Routes {
		rt := &table.Routes[i]
		if !strings.HasSuffix(rt.Name, HANameSuffix) {
			u.logger.Debug("route not HA-managed, skipping",
				zap.Stringer("table", table.Ref),
				zap.String("route", rt.Name))
			continue
		}

		idx := matchIndex(topo, rt.NextHopIP)
		if idx < 0 {
			u.logger.Warn("HA route next hop matches neither appliance, skipping",
				zap.Stringer("table", table.Ref),
				zap.String("route", rt.Name),
				zap.String("next_hop", rt.NextHopIP))
			continue
		}
		if idx >= len(targetIPs) {
			u.logger.Warn("no index-paired target interface, skipping",
				zap.Stringer("table", table.Ref),
				zap.String("route", rt.Name),
				zap.Int("index", idx))
			continue
		}

		want := targetIPs[idx]
		if rt.NextHopIP == want && rt.NextHopType == NextHopVirtualAppliance {
			continue
		}
		u.logger.Info("rewriting route next hop",
			zap.Stringer("table", table.Ref),
			zap.String("route", rt.Name),
			zap.String("prefix", rt.AddressPrefix),
			zap.String("from", rt.NextHopIP),
			zap.String("to", want))
		rt.NextHopIP = want
		rt.NextHopType = NextHopVirtualAppliance
		mutated++
	}
	return mutated
}

// matchIndex finds the interface index whose primary or secondary IP
// equals the route's current next hop.
func matchIndex(topo *topology.Topology, nextHop string) int {
	for i, ip := range topo.PrimaryIPs {
		if ip == nextHop {
			return i
		}
	}
	for i, ip := range topo.SecondaryIPs {
		if ip == nextHop {
			return i
		}
	}
	return -1
}

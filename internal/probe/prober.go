// Package probe performs appliance health probing and aggregates repeated
// samples into the per-role down verdicts the decision engine consumes.
package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
)

// PowerStateRunning is the instance-view code of a running VM.
const PowerStateRunning = "PowerState/running"

// DefaultTCPTimeout bounds a single TCP reachability probe.
const DefaultTCPTimeout = 1 * time.Second

// Prober checks one appliance once. A nil return means the appliance is
// up; any error means down, with the error carrying the reason. Probe
// errors are verdicts, not failures: a control-plane error counts as a
// down sample (fail-safe toward protective failover).
type Prober interface {
	Probe(ctx context.Context, role appliance.Role) error
}

// PowerStateReader reads a VM's instance-view power state from the
// control plane.
type PowerStateReader interface {
	PowerState(ctx context.Context, resourceGroup, vmName string) (string, error)
}

// VMStatusProber considers an appliance up only when the control plane
// reports its VM as running.
type VMStatusProber struct {
	reader PowerStateReader
	pair   appliance.Pair
	logger *zap.Logger
}

// NewVMStatusProber creates a power-state prober.
func NewVMStatusProber(reader PowerStateReader, pair appliance.Pair, logger *zap.Logger) *VMStatusProber {
	return &VMStatusProber{reader: reader, pair: pair, logger: logger}
}

// Probe queries the instance view of the role's VM.
func (p *VMStatusProber) Probe(ctx context.Context, role appliance.Role) error {
	ep := p.pair.Endpoint(role)
	code, err := p.reader.PowerState(ctx, ep.ResourceGroup, ep.Name)
	if err != nil {
		return fmt.Errorf("probe: power state of %s (%s): %w", ep.Name, role, err)
	}
	if code != PowerStateRunning {
		return fmt.Errorf("probe: %s (%s) is %s", ep.Name, role, strings.TrimPrefix(code, "PowerState/"))
	}
	return nil
}

// Dialer matches net.Dialer.DialContext.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// TCPProber considers an appliance up when a TCP connection to its
// configured FQDN:port completes within the timeout.
type TCPProber struct {
	pair    appliance.Pair
	timeout time.Duration
	dial    Dialer
	logger  *zap.Logger
}

// NewTCPProber creates a TCP reachability prober.
func NewTCPProber(pair appliance.Pair, timeout time.Duration, logger *zap.Logger) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTCPTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &TCPProber{pair: pair, timeout: timeout, dial: dialer.DialContext, logger: logger}
}

// Probe dials the role's probe address. The dial is bounded by both the
// prober's timeout and the run's context.
func (p *TCPProber) Probe(ctx context.Context, role appliance.Role) error {
	addr := p.pair.Endpoint(role).ProbeAddr()
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("probe: tcp %s (%s): %w", addr, role, err)
	}
	if cerr := conn.Close(); cerr != nil {
		p.logger.Debug("probe connection close failed", zap.String("addr", addr), zap.Error(cerr))
	}
	return nil
}

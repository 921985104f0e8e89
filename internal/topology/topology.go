// Package topology resolves, once per run, the private IPs attached to
// each appliance role and the set of subscriptions to scan for managed
// route tables.
package topology

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
)

// VMInterface is one VM-bound network interface as seen by the control
// plane: the owning VM's resource ID plus the interface's private IPs in
// configuration order.
type VMInterface struct {
	VMID       string
	PrivateIPs []string
}

// NetworkLister enumerates VM-bound network interfaces in a subscription.
type NetworkLister interface {
	ListVMInterfaces(ctx context.Context, subscriptionID string) ([]VMInterface, error)
}

// SubscriptionLister enumerates the subscriptions visible to the running
// identity.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]string, error)
}

// Topology is the discovered network layout of the pair. Read-only after
// discovery; the route updater pairs the two IP slices by index, which
// assumes a symmetric interface ordering fixed at provisioning time.
type Topology struct {
	PrimaryIPs    []string
	SecondaryIPs  []string
	Subscriptions []string
}

// IPs returns the interface set for a role.
func (t *Topology) IPs(r appliance.Role) []string {
	if r == appliance.RolePrimary {
		return t.PrimaryIPs
	}
	return t.SecondaryIPs
}

// Discoverer performs per-run topology discovery.
type Discoverer struct {
	network NetworkLister
	subs    SubscriptionLister
	pair    appliance.Pair
	homeSub string
	logger  *zap.Logger
}

// NewDiscoverer creates a discoverer rooted at the home subscription.
func NewDiscoverer(network NetworkLister, subs SubscriptionLister, pair appliance.Pair, homeSub string, logger *zap.Logger) *Discoverer {
	return &Discoverer{network: network, subs: subs, pair: pair, homeSub: homeSub, logger: logger}
}

// Discover resolves both interface sets and the subscription scope. A
// role resolving to zero interfaces is a configuration error: continuing
// would make the updater silently skip every route for that role.
func (d *Discoverer) Discover(ctx context.Context) (*Topology, error) {
	ifaces, err := d.network.ListVMInterfaces(ctx, d.homeSub)
	if err != nil {
		return nil, fmt.Errorf("topology: list interfaces: %w", err)
	}

	topo := &Topology{}
	for _, iface := range ifaces {
		switch {
		case matchesEndpoint(iface.VMID, d.pair.Primary):
			topo.PrimaryIPs = append(topo.PrimaryIPs, iface.PrivateIPs...)
		case matchesEndpoint(iface.VMID, d.pair.Secondary):
			topo.SecondaryIPs = append(topo.SecondaryIPs, iface.PrivateIPs...)
		}
	}

	if len(topo.PrimaryIPs) == 0 {
		return nil, fmt.Errorf("topology: no interfaces found for primary appliance %s in %s", d.pair.Primary.Name, d.pair.Primary.ResourceGroup)
	}
	if len(topo.SecondaryIPs) == 0 {
		return nil, fmt.Errorf("topology: no interfaces found for secondary appliance %s in %s", d.pair.Secondary.Name, d.pair.Secondary.ResourceGroup)
	}
	if len(topo.PrimaryIPs) != len(topo.SecondaryIPs) {
		d.logger.Warn("asymmetric appliance deployment, unpaired interfaces will not be redirected",
			zap.Int("primary_interfaces", len(topo.PrimaryIPs)),
			zap.Int("secondary_interfaces", len(topo.SecondaryIPs)))
	}

	topo.Subscriptions, err = d.subs.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("topology: list subscriptions: %w", err)
	}

	d.logger.Info("topology discovered",
		zap.Strings("primary_ips", topo.PrimaryIPs),
		zap.Strings("secondary_ips", topo.SecondaryIPs),
		zap.Int("subscriptions", len(topo.Subscriptions)))
	return topo, nil
}

// matchesEndpoint reports whether an ARM VM resource ID refers to the
// endpoint's instance. IDs look like
// /subscriptions/<sub>/resourceGroups/<rg>/providers/Microsoft.Compute/virtualMachines/<name>
// and segment values are compared case-insensitively, as ARM does.
func matchesEndpoint(vmID string, ep appliance.Endpoint) bool {
	rg, name := parseVMID(vmID)
	return strings.EqualFold(name, ep.Name) && strings.EqualFold(rg, ep.ResourceGroup)
}

func parseVMID(id string) (resourceGroup, name string) {
	segments := strings.Split(strings.Trim(id, "/"), "/")
	for i := 0; i+1 < len(segments); i += 2 {
		switch strings.ToLower(segments[i]) {
		case "resourcegroups":
			resourceGroup = segments[i+1]
		case "virtualmachines":
			name = segments[i+1]
		}
	}
	return resourceGroup, name
}

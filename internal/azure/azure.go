// Package azure binds the controller's collaborator interfaces to the
// Azure control plane: VM instance views for power-state probing, NIC
// enumeration for topology discovery, tag-filtered resource listing and
// route table read/write for the updater.
package azure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/routes"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/topology"
)

const routeTableType = "Microsoft.Network/routeTables"

// Clients implements probe.PowerStateReader, topology.NetworkLister,
// topology.SubscriptionLister and routes.TableStore against ARM.
//
// GetTable keeps the raw ARM representation of each fetched table so
// UpdateTable can write the full resource back (ARM route table update
// is a whole-resource replace) with only the next hops changed.
type Clients struct {
	cred    azcore.TokenCredential
	opts    *arm.ClientOptions
	homeSub string
	udrTag  string
	logger  *zap.Logger

	mu      sync.Mutex
	fetched map[string]*armnetwork.RouteTable
}

// NewClients builds the adapter using the default credential chain
// (environment, workload identity, managed identity, CLI). opts may be
// nil; when set it is applied to every ARM client, e.g. to target a
// sovereign cloud.
func NewClients(homeSubscription, udrTag string, opts *arm.ClientOptions, logger *zap.Logger) (*Clients, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure: create credential: %w", err)
	}
	return &Clients{
		cred:    cred,
		opts:    opts,
		homeSub: homeSubscription,
		udrTag:  udrTag,
		logger:  logger,
		fetched: map[string]*armnetwork.RouteTable{},
	}, nil
}

// PowerState returns the instance-view power state code of a VM, e.g.
// "PowerState/running".
func (c *Clients) PowerState(ctx context.Context, resourceGroup, vmName string) (string, error) {
	client, err := armcompute.NewVirtualMachinesClient(c.homeSub, c.cred, c.opts)
	if err != nil {
		return "", fmt.Errorf("azure: compute client: %w", err)
	}
	view, err := client.InstanceView(ctx, resourceGroup, vmName, nil)
	if err != nil {
		return "", fmt.Errorf("azure: instance view of %s/%s: %w", resourceGroup, vmName, err)
	}
	code, ok := powerStateCode(view.Statuses)
	if !ok {
		return "", fmt.Errorf("azure: no power state reported for %s/%s", resourceGroup, vmName)
	}
	return code, nil
}

// ListVMInterfaces enumerates VM-bound NICs in a subscription.
func (c *Clients) ListVMInterfaces(ctx context.Context, subscriptionID string) ([]topology.VMInterface, error) {
	client, err := armnetwork.NewInterfacesClient(subscriptionID, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("azure: interfaces client: %w", err)
	}

	var out []topology.VMInterface
	pager := client.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: list interfaces: %w", err)
		}
		for _, iface := range page.Value {
			vi, ok := vmInterfaceFromARM(iface)
			if !ok {
				continue
			}
			out = append(out, vi)
		}
	}
	return out, nil
}

// ListSubscriptions enumerates subscriptions visible to the identity.
func (c *Clients) ListSubscriptions(ctx context.Context) ([]string, error) {
	client, err := armsubscriptions.NewClient(c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("azure: subscriptions client: %w", err)
	}

	var subs []string
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: list subscriptions: %w", err)
		}
		for _, sub := range page.Value {
			if sub.SubscriptionID != nil {
				subs = append(subs, *sub.SubscriptionID)
			}
		}
	}
	return subs, nil
}

// ListTaggedTables lists route tables carrying the nva_ha_udr tag with
// the configured value.
func (c *Clients) ListTaggedTables(ctx context.Context, subscriptionID string) ([]routes.TableRef, error) {
	client, err := armresources.NewClient(subscriptionID, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("azure: resources client: %w", err)
	}

	filter := fmt.Sprintf("tagName eq '%s' and tagValue eq '%s'", routes.UDRTagName, c.udrTag)
	var refs []routes.TableRef
	pager := client.NewListPager(&armresources.ClientListOptions{Filter: &filter})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: list tagged resources: %w", err)
		}
		for _, res := range page.Value {
			if res.ID == nil || res.Type == nil || !strings.EqualFold(*res.Type, routeTableType) {
				continue
			}
			id, err := arm.ParseResourceID(*res.ID)
			if err != nil {
				c.logger.Warn("unparseable resource id, skipping", zap.String("id", *res.ID), zap.Error(err))
				continue
			}
			refs = append(refs, routes.TableRef{
				SubscriptionID: id.SubscriptionID,
				ResourceGroup:  id.ResourceGroupName,
				Name:           id.Name,
			})
		}
	}
	return refs, nil
}

// GetTable fetches a route table snapshot and remembers its ARM form for
// the eventual write-back.
func (c *Clients) GetTable(ctx context.Context, ref routes.TableRef) (*routes.Table, error) {
	client, err := armnetwork.NewRouteTablesClient(ref.SubscriptionID, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("azure: route tables client: %w", err)
	}
	resp, err := client.Get(ctx, ref.ResourceGroup, ref.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: get route table %s: %w", ref, err)
	}

	c.mu.Lock()
	c.fetched[ref.String()] = &resp.RouteTable
	c.mu.Unlock()

	return tableFromARM(ref, &resp.RouteTable), nil
}

// UpdateTable writes the snapshot's next hops back as a whole-resource
// replace, conditional on the etag observed at read time. An etag
// mismatch surfaces as routes.ErrConflict so the updater re-reads and
// retries.
func (c *Clients) UpdateTable(ctx context.Context, table *routes.Table) error {
	c.mu.Lock()
	armTable := c.fetched[table.Ref.String()]
	delete(c.fetched, table.Ref.String())
	c.mu.Unlock()
	if armTable == nil {
		return fmt.Errorf("azure: route table %s was not read before write", table.Ref)
	}
	applyRoutes(armTable, table)

	client, err := armnetwork.NewRouteTablesClient(table.Ref.SubscriptionID, c.cred, c.opts)
	if err != nil {
		return fmt.Errorf("azure: route tables client: %w", err)
	}

	poller, err := client.BeginCreateOrUpdate(ifMatchContext(ctx, table.Etag),
		table.Ref.ResourceGroup, table.Ref.Name, *armTable, nil)
	if err == nil {
		_, err = poller.PollUntilDone(ctx, nil)
	}
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %s", routes.ErrConflict, table.Ref)
		}
		return fmt.Errorf("azure: update route table %s: %w", table.Ref, err)
	}
	return nil
}

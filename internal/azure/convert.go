package azure

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/routes"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/topology"
)

// powerStateCode extracts the PowerState/* code from an instance view.
func powerStateCode(statuses []*armcompute.InstanceViewStatus) (string, bool) {
	for _, status := range statuses {
		if status == nil || status.Code == nil {
			continue
		}
		if strings.HasPrefix(*status.Code, "PowerState/") {
			return *status.Code, true
		}
	}
	return "", false
}

// vmInterfaceFromARM maps a NIC to the topology model. NICs not bound to
// a VM are dropped; IPs keep their configuration order.
func vmInterfaceFromARM(iface *armnetwork.Interface) (topology.VMInterface, bool) {
	if iface == nil || iface.Properties == nil ||
		iface.Properties.VirtualMachine == nil || iface.Properties.VirtualMachine.ID == nil {
		return topology.VMInterface{}, false
	}
	vi := topology.VMInterface{VMID: *iface.Properties.VirtualMachine.ID}
	for _, cfg := range iface.Properties.IPConfigurations {
		if cfg == nil || cfg.Properties == nil || cfg.Properties.PrivateIPAddress == nil {
			continue
		}
		vi.PrivateIPs = append(vi.PrivateIPs, *cfg.Properties.PrivateIPAddress)
	}
	if len(vi.PrivateIPs) == 0 {
		return topology.VMInterface{}, false
	}
	return vi, true
}

// tableFromARM maps a route table to the domain snapshot.
func tableFromARM(ref routes.TableRef, armTable *armnetwork.RouteTable) *routes.Table {
	table := &routes.Table{Ref: ref}
	if armTable.Etag != nil {
		table.Etag = *armTable.Etag
	}
	if armTable.Properties == nil {
		return table
	}
	for _, rt := range armTable.Properties.Routes {
		if rt == nil || rt.Name == nil {
			continue
		}
		route := routes.Route{Name: *rt.Name}
		if rt.Properties != nil {
			if rt.Properties.AddressPrefix != nil {
				route.AddressPrefix = *rt.Properties.AddressPrefix
			}
			if rt.Properties.NextHopType != nil {
				route.NextHopType = string(*rt.Properties.NextHopType)
			}
			if rt.Properties.NextHopIPAddress != nil {
				route.NextHopIP = *rt.Properties.NextHopIPAddress
			}
		}
		table.Routes = append(table.Routes, route)
	}
	return table
}

// applyRoutes copies the snapshot's next hops back onto the ARM table,
// matching routes by name. Routes the snapshot does not know are left
// alone.
func applyRoutes(armTable *armnetwork.RouteTable, table *routes.Table) {
	if armTable.Properties == nil {
		return
	}
	byName := make(map[string]routes.Route, len(table.Routes))
	for _, rt := range table.Routes {
		byName[rt.Name] = rt
	}
	for _, armRoute := range armTable.Properties.Routes {
		if armRoute == nil || armRoute.Name == nil || armRoute.Properties == nil {
			continue
		}
		rt, ok := byName[*armRoute.Name]
		if !ok {
			continue
		}
		if rt.NextHopIP != "" {
			hop := rt.NextHopIP
			armRoute.Properties.NextHopIPAddress = &hop
		}
		if rt.NextHopType != "" {
			hopType := armnetwork.RouteNextHopType(rt.NextHopType)
			armRoute.Properties.NextHopType = &hopType
		}
	}
}

// ifMatchContext attaches an If-Match header carrying the etag observed
// at read time. A table read without an etag writes unconditionally:
// ARM rejects an empty If-Match value.
func ifMatchContext(ctx context.Context, etag string) context.Context {
	if etag == "" {
		return ctx
	}
	header := http.Header{}
	header.Set("If-Match", etag)
	return policy.WithHTTPHeader(ctx, header)
}

// isConflict reports whether an ARM error is an etag precondition
// failure.
func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusPreconditionFailed
}

// Package appliance holds the identity model for the HA pair: which two
// virtual appliances are under management and how to address them.
package appliance

import "fmt"

// Role identifies one member of the HA pair.
type Role int

const (
	RolePrimary Role = iota
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Other returns the opposite member of the pair.
func (r Role) Other() Role {
	if r == RolePrimary {
		return RoleSecondary
	}
	return RolePrimary
}

// Endpoint describes one appliance instance and, in TCP probe mode, the
// address its health is probed on.
type Endpoint struct {
	Name          string
	ResourceGroup string
	FQDN          string
	Port          int
}

// ProbeAddr returns the host:port pair for TCP probing.
func (e Endpoint) ProbeAddr() string {
	return fmt.Sprintf("%s:%d", e.FQDN, e.Port)
}

// Pair is the two appliances under HA management.
type Pair struct {
	Primary   Endpoint
	Secondary Endpoint
}

// Endpoint returns the endpoint for a role.
func (p Pair) Endpoint(r Role) Endpoint {
	if r == RolePrimary {
		return p.Primary
	}
	return p.Secondary
}

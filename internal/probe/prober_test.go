// internal/probe/prober_test.go
package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
)

type fakePowerStates struct {
	codes map[string]string
	err   error
}

func (f *fakePowerStates) PowerState(_ context.Context, _, vmName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.codes[vmName], nil
}

func testPair() appliance.Pair {
	return appliance.Pair{
		Primary:   appliance.Endpoint{Name: "fw-a", ResourceGroup: "rg", FQDN: "fw-a.example.net", Port: 22},
		Secondary: appliance.Endpoint{Name: "fw-b", ResourceGroup: "rg", FQDN: "fw-b.example.net", Port: 22},
	}
}

func TestVMStatusProber_Probe(t *testing.T) {
	t.Run("running is up", func(t *testing.T) {
		reader := &fakePowerStates{codes: map[string]string{"fw-a": PowerStateRunning}}
		p := NewVMStatusProber(reader, testPair(), zap.NewNop())

		assert.NoError(t, p.Probe(context.Background(), appliance.RolePrimary))
	})

	t.Run("deallocated is down", func(t *testing.T) {
		reader := &fakePowerStates{codes: map[string]string{"fw-b": "PowerState/deallocated"}}
		p := NewVMStatusProber(reader, testPair(), zap.NewNop())

		err := p.Probe(context.Background(), appliance.RoleSecondary)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deallocated")
	})

	t.Run("control plane error is down", func(t *testing.T) {
		reader := &fakePowerStates{err: errors.New("throttled")}
		p := NewVMStatusProber(reader, testPair(), zap.NewNop())

		err := p.Probe(context.Background(), appliance.RolePrimary)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttled")
	})
}

func TestTCPProber_Probe(t *testing.T) {
	t.Run("dials the role's probe address", func(t *testing.T) {
		var dialed string
		p := NewTCPProber(testPair(), time.Second, zap.NewNop())
		p.dial = func(_ context.Context, network, addr string) (net.Conn, error) {
			dialed = network + "/" + addr
			c, s := net.Pipe()
			go func() { _ = s.Close() }()
			return c, nil
		}

		require.NoError(t, p.Probe(context.Background(), appliance.RolePrimary))
		assert.Equal(t, "tcp/fw-a.example.net:22", dialed)
	})

	t.Run("refused connection is down", func(t *testing.T) {
		p := NewTCPProber(testPair(), time.Second, zap.NewNop())
		p.dial = func(_ context.Context, _, _ string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}

		err := p.Probe(context.Background(), appliance.RoleSecondary)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fw-b.example.net:22")
	})

	t.Run("cancelled context aborts the dial", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewTCPProber(testPair(), time.Second, zap.NewNop())
		p.dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return nil, ctx.Err()
		}

		err := p.Probe(ctx, appliance.RolePrimary)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("defaults the timeout", func(t *testing.T) {
		p := NewTCPProber(testPair(), 0, zap.NewNop())
		assert.Equal(t, DefaultTCPTimeout, p.timeout)
	})
}

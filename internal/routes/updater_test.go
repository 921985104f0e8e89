// internal/routes/updater_test.go
package routes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/topology"
)

// fakeStore is an in-memory TableStore with etag semantics: every write
// bumps the etag, and a stale-etag write returns ErrConflict.
type fakeStore struct {
	tables       map[string]*Table
	listErr      error
	conflictLeft int // next N updates fail with ErrConflict
	getCalls     int
	writeCalls   int
}

func newFakeStore(tables ...*Table) *fakeStore {
	s := &fakeStore{tables: map[string]*Table{}}
	for _, tb := range tables {
		s.tables[tb.Ref.String()] = tb
	}
	return s
}

func (s *fakeStore) ListTaggedTables(_ context.Context, subscriptionID string) ([]TableRef, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var refs []TableRef
	for _, tb := range s.tables {
		if tb.Ref.SubscriptionID == subscriptionID {
			refs = append(refs, tb.Ref)
		}
	}
	return refs, nil
}

func (s *fakeStore) GetTable(_ context.Context, ref TableRef) (*Table, error) {
	s.getCalls++
	tb, ok := s.tables[ref.String()]
	if !ok {
		return nil, fmt.Errorf("not found: %s", ref)
	}
	snapshot := *tb
	snapshot.Routes = append([]Route(nil), tb.Routes...)
	return &snapshot, nil
}

func (s *fakeStore) UpdateTable(_ context.Context, table *Table) error {
	s.writeCalls++
	if s.conflictLeft > 0 {
		s.conflictLeft--
		// simulate an interleaved writer bumping the version
		current := s.tables[table.Ref.String()]
		current.Etag = bumpEtag(current.Etag)
		return ErrConflict
	}
	current := s.tables[table.Ref.String()]
	if current.Etag != table.Etag {
		return ErrConflict
	}
	stored := *table
	stored.Routes = append([]Route(nil), table.Routes...)
	stored.Etag = bumpEtag(table.Etag)
	s.tables[table.Ref.String()] = &stored
	return nil
}

func bumpEtag(etag string) string {
	n, _ := strconv.Atoi(etag)
	return strconv.Itoa(n + 1)
}

func testTopo() *topology.Topology {
	return &topology.Topology{
		PrimaryIPs:    []string{"10.0.0.4", "10.0.1.4"},
		SecondaryIPs:  []string{"10.0.0.5", "10.0.1.5"},
		Subscriptions: []string{"sub-0"},
	}
}

func haTable(nextHops ...string) *Table {
	tb := &Table{
		Ref:  TableRef{SubscriptionID: "sub-0", ResourceGroup: "rg-spokes", Name: "rt-workload"},
		Etag: "1",
	}
	for i, hop := range nextHops {
		tb.Routes = append(tb.Routes, Route{
			Name:          fmt.Sprintf("ToInternet-%d-HA", i),
			AddressPrefix: "0.0.0.0/0",
			NextHopType:   NextHopVirtualAppliance,
			NextHopIP:     hop,
		})
	}
	return tb
}

func newTestUpdater(store TableStore) *Updater {
	return NewUpdater(store, nil, nil, zap.NewNop())
}

func TestUpdater_Redirect(t *testing.T) {
	t.Run("rewrites index-paired next hops on failover", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.4", "10.0.1.4"))
		u := newTestUpdater(store)

		changed, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)

		got := store.tables["sub-0/rg-spokes/rt-workload"]
		assert.Equal(t, "10.0.0.5", got.Routes[0].NextHopIP)
		assert.Equal(t, "10.0.1.5", got.Routes[1].NextHopIP)
		assert.Equal(t, NextHopVirtualAppliance, got.Routes[0].NextHopType)
	})

	t.Run("second invocation is idempotent", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.4", "10.0.1.4"))
		u := newTestUpdater(store)

		changed, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)
		require.Equal(t, 1, changed)

		writesBefore := store.writeCalls
		changed, err = u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)
		assert.Zero(t, changed)
		assert.Equal(t, writesBefore, store.writeCalls, "no write when already correct")
	})

	t.Run("failback steers to primary", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.5", "10.0.1.5"))
		u := newTestUpdater(store)

		changed, err := u.Redirect(context.Background(), testTopo(), appliance.RolePrimary)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)
		got := store.tables["sub-0/rg-spokes/rt-workload"]
		assert.Equal(t, "10.0.0.4", got.Routes[0].NextHopIP)
	})

	t.Run("routes without HA suffix are never touched", func(t *testing.T) {
		tb := haTable("10.0.0.4")
		tb.Routes = append(tb.Routes, Route{
			Name:          "ToInternet",
			AddressPrefix: "0.0.0.0/0",
			NextHopType:   NextHopVirtualAppliance,
			NextHopIP:     "10.0.0.4",
		})
		store := newFakeStore(tb)
		u := newTestUpdater(store)

		_, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)

		got := store.tables["sub-0/rg-spokes/rt-workload"]
		assert.Equal(t, "10.0.0.5", got.Routes[0].NextHopIP, "HA route rewritten")
		assert.Equal(t, "10.0.0.4", got.Routes[1].NextHopIP, "plain route untouched")
	})

	t.Run("unmanaged next hop is skipped", func(t *testing.T) {
		store := newFakeStore(haTable("192.168.0.1"))
		u := newTestUpdater(store)

		changed, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)
		assert.Zero(t, changed)
	})

	t.Run("unpaired index is skipped", func(t *testing.T) {
		topo := testTopo()
		topo.SecondaryIPs = topo.SecondaryIPs[:1]
		store := newFakeStore(haTable("10.0.1.4")) // pairs at index 1, target has no index 1
		u := newTestUpdater(store)

		changed, err := u.Redirect(context.Background(), topo, appliance.RoleSecondary)
		require.NoError(t, err)
		assert.Zero(t, changed)
	})

	t.Run("write conflict re-reads and retries", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.4"))
		store.conflictLeft = 2
		u := newTestUpdater(store)

		changed, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)
		assert.Equal(t, 3, store.getCalls, "fresh read per attempt")
		assert.Equal(t, 3, store.writeCalls)
		assert.Equal(t, "10.0.0.5", store.tables["sub-0/rg-spokes/rt-workload"].Routes[0].NextHopIP)
	})

	t.Run("conflict retries are bounded", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.4"))
		store.conflictLeft = 10
		u := newTestUpdater(store)

		_, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 3, store.writeCalls)
	})

	t.Run("non-conflict write errors are not retried", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.4"))
		broken := &erroringStore{fakeStore: store, updateErr: errors.New("forbidden")}
		u := newTestUpdater(broken)

		_, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.Error(t, err)
		assert.ErrorContains(t, err, "forbidden")
		assert.Equal(t, 1, broken.updateCalls)
	})

	t.Run("list errors abort the run", func(t *testing.T) {
		store := newFakeStore()
		store.listErr = errors.New("subscription disabled")
		u := newTestUpdater(store)

		_, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		assert.ErrorContains(t, err, "subscription disabled")
	})

	t.Run("spans multiple subscriptions", func(t *testing.T) {
		other := haTable("10.0.0.4")
		other.Ref = TableRef{SubscriptionID: "sub-1", ResourceGroup: "rg-dmz", Name: "rt-dmz"}
		store := newFakeStore(haTable("10.0.0.4"), other)
		u := newTestUpdater(store)

		topo := testTopo()
		topo.Subscriptions = []string{"sub-0", "sub-1"}
		changed, err := u.Redirect(context.Background(), topo, appliance.RoleSecondary)
		require.NoError(t, err)
		assert.Equal(t, 2, changed)
	})
}

type erroringStore struct {
	*fakeStore
	updateErr   error
	updateCalls int
}

func (s *erroringStore) UpdateTable(_ context.Context, _ *Table) error {
	s.updateCalls++
	return s.updateErr
}

type countingNotifier struct {
	messages []string
}

func (n *countingNotifier) Notify(_ context.Context, message string) {
	n.messages = append(n.messages, message)
}

func TestUpdater_FailoverAlerting(t *testing.T) {
	t.Run("failover alerts once per subscription", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.4"))
		notifier := &countingNotifier{}
		u := NewUpdater(store, notifier, nil, zap.NewNop())

		_, err := u.Redirect(context.Background(), testTopo(), appliance.RoleSecondary)
		require.NoError(t, err)
		require.Len(t, notifier.messages, 1)
		assert.Contains(t, notifier.messages[0], "failover")
		assert.Contains(t, notifier.messages[0], "sub-0")
	})

	t.Run("failback emits no alert", func(t *testing.T) {
		store := newFakeStore(haTable("10.0.0.5"))
		notifier := &countingNotifier{}
		u := NewUpdater(store, notifier, nil, zap.NewNop())

		_, err := u.Redirect(context.Background(), testTopo(), appliance.RolePrimary)
		require.NoError(t, err)
		assert.Empty(t, notifier.messages)
	})
}

package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"dinners/internal/core"
	"dinners/internal/log"
	"dinners/internal/store"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s, err := New(context.Background(), rdb, "dinners", log.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, mr, rdb
}

func TestUpsertStoresWireDocument(t *testing.T) {
	ctx := context.Background()
	s, mr, _ := newTestStore(t)
	rec := core.DinnerRecord{Attendees: []core.PersonID{"A"}, Price: core.MustPrice("7")}
	if err := s.Upsert(ctx, "2024-03-05", rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := mr.HGet("dinners", "2024-03-05"); got != `{"attendees":["A"],"price":7}` {
		t.Fatalf("stored document = %s", got)
	}
}

func TestRoundTripThroughSubscription(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	var latest core.Ledger
	sub, _ := s.Subscribe(ctx, func(l core.Ledger) { latest = l })
	defer sub.Unsubscribe()

	if err := s.Upsert(ctx, "2024-03-12", core.DinnerRecord{Attendees: []core.PersonID{"A", "B"}, Price: core.MustPrice("15")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec := latest["2024-03-12"]; len(rec.Attendees) != 2 || !rec.Price.Equal(core.MustPrice("15")) {
		t.Fatalf("unexpected ledger %v", latest)
	}
	if err := s.Remove(ctx, "2024-03-12"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if latest.Has("2024-03-12") {
		t.Fatal("record still present")
	}
	if err := s.Remove(ctx, "2024-03-12"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}

func TestSnapshotSkipsUnreadableFields(t *testing.T) {
	ctx := context.Background()
	s, mr, _ := newTestStore(t)
	mr.HSet("dinners", "2024-03-05", `{"attendees":["A"],"price":7}`)
	mr.HSet("dinners", "Tue Mar 12 2024", `{"attendees":[],"price":9}`)
	mr.HSet("dinners", "2024-03-06", `not json`)
	mr.HSet("dinners", "garbage", `{"attendees":[],"price":9}`)

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 || !snap.Has("2024-03-05") || !snap.Has("2024-03-12") {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestRunRefreshesOnPeerWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, mr, _ := newTestStore(t)
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdbB.Close()
	b, err := New(ctx, rdbB, "dinners", log.Discard())
	if err != nil {
		t.Fatalf("new b: %v", err)
	}

	var mu sync.Mutex
	var seen core.Ledger
	sub, _ := b.Subscribe(ctx, func(l core.Ledger) {
		mu.Lock()
		seen = l
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// wait until b's subscription is live
	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Upsert(ctx, "2024-03-05", core.DinnerRecord{Price: core.MustPrice("7")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := seen.Has("2024-03-05")
		mu.Unlock()
		if ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if !seen.Has("2024-03-05") {
		t.Fatal("peer write never reached b")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestUnavailableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s, err := New(context.Background(), rdb, "dinners", log.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mr.Close()
	err = s.Upsert(context.Background(), "2024-03-05", core.DinnerRecord{Price: core.MustPrice("7")})
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

type opsNotifier struct {
	mu  sync.Mutex
	ops []store.Op
}

func (n *opsNotifier) NotifyChange(_ context.Context, _ core.DateKey, op store.Op) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, op)
	return errors.New("broker down")
}

func TestWritesNotifyAndSurviveNotifierErrors(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	n := &opsNotifier{}
	s.SetNotifier(n)

	if err := s.Upsert(ctx, "2024-03-05", core.DinnerRecord{Price: core.MustPrice("7")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Remove(ctx, "2024-03-06"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if err := s.Remove(ctx, "2024-03-05"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(n.ops) != 2 || n.ops[0] != store.OpUpsert || n.ops[1] != store.OpRemove {
		t.Fatalf("notified ops = %v", n.ops)
	}
}

func TestRunSkipsOwnAnnouncements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, mr, _ := newTestStore(t)
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdbB.Close()
	b, err := New(ctx, rdbB, "dinners", log.Discard())
	if err != nil {
		t.Fatalf("new b: %v", err)
	}
	if a.Origin() == b.Origin() {
		t.Fatal("stores share an origin")
	}

	var deliveries atomic.Int32
	var peerSeen atomic.Bool
	sub, _ := b.Subscribe(ctx, func(l core.Ledger) {
		deliveries.Add(1)
		if l.Has("2024-03-06") {
			peerSeen.Store(true)
		}
	})
	defer sub.Unsubscribe()

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	// b's own write, then a's; messages arrive in publish order, so once
	// a's write is visible any echo of b's would have been handled too.
	if err := b.Upsert(ctx, "2024-03-05", core.DinnerRecord{Price: core.MustPrice("7")}); err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	if err := a.Upsert(ctx, "2024-03-06", core.DinnerRecord{Price: core.MustPrice("7")}); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	for !peerSeen.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !peerSeen.Load() {
		t.Fatal("peer write never reached b")
	}
	// priming, b's own refresh, the refresh for a's write
	if got := deliveries.Load(); got != 3 {
		t.Fatalf("deliveries = %d, want 3", got)
	}
	cancel()
	<-done
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sigamony/DataViz/internal/storage"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Every read advances a microsecond so stamps stay strictly ordered.
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backend struct {
	name  string
	store Store
	clock *mockClock
}

// backends returns every Store implementation runnable without external services.
func backends(t *testing.T) []backend {
	t.Helper()

	memClock := newMockClock()
	mem := NewInMemoryWithClock(memClock, SessionTTL, MaxHistory)

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlClock := newMockClock()
	sq := NewSQLite(db)
	sq.clock = sqlClock

	return []backend{
		{name: "inmem", store: mem, clock: memClock},
		{name: "sqlite", store: sq, clock: sqlClock},
	}
}

func TestHistoryBound(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, err := b.store.CreateSession(ctx, "")
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			for i := 0; i < 13; i++ {
				if err := b.store.AppendTurn(ctx, sid, "ds", RoleUser, fmt.Sprintf("msg-%d", i)); err != nil {
					t.Fatalf("AppendTurn %d: %v", i, err)
				}
			}

			got, err := b.store.History(ctx, sid, "ds")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(got) != MaxHistory {
				t.Fatalf("len(History) = %d, want %d", len(got), MaxHistory)
			}
			if got[0].Content != "msg-3" {
				t.Errorf("oldest = %q, want msg-3", got[0].Content)
			}
			if got[len(got)-1].Content != "msg-12" {
				t.Errorf("newest = %q, want msg-12", got[len(got)-1].Content)
			}
			for i := 1; i < len(got); i++ {
				if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
					t.Errorf("turn %d older than turn %d", i, i-1)
				}
			}

			n, err := b.store.TurnCount(ctx, sid, "ds")
			if err != nil || n != MaxHistory {
				t.Errorf("TurnCount = %d, %v; want %d", n, err, MaxHistory)
			}
		})
	}
}

func TestSessionExpiry(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, _ := b.store.CreateSession(ctx, "tag")

			sess, err := b.store.GetSession(ctx, sid)
			if err != nil || sess == nil {
				t.Fatalf("GetSession fresh = %v, %v", sess, err)
			}
			if sess.ProfileTag != "tag" {
				t.Errorf("ProfileTag = %q", sess.ProfileTag)
			}

			b.clock.Advance(25 * time.Hour)

			sess, err = b.store.GetSession(ctx, sid)
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if sess != nil {
				t.Errorf("GetSession after 25h = %+v, want nil", sess)
			}
			if err := b.store.AppendTurn(ctx, sid, "ds", RoleUser, "late"); !errors.Is(err, ErrSessionExpired) {
				t.Errorf("AppendTurn err = %v, want ErrSessionExpired", err)
			}
		})
	}
}

func TestAppendRefreshesLastActive(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, _ := b.store.CreateSession(ctx, "")

			b.clock.Advance(20 * time.Hour)
			if err := b.store.AppendTurn(ctx, sid, "ds", RoleUser, "hi"); err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}
			b.clock.Advance(20 * time.Hour)

			if sess, _ := b.store.GetSession(ctx, sid); sess == nil {
				t.Error("session expired despite activity 20h ago")
			}
		})
	}
}

func TestUnknownSession(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			if sess, err := b.store.GetSession(ctx, "missing"); sess != nil || err != nil {
				t.Errorf("GetSession = %v, %v; want nil, nil", sess, err)
			}
			if err := b.store.AppendTurn(ctx, "missing", "ds", RoleUser, "x"); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("AppendTurn err = %v, want ErrSessionNotFound", err)
			}
			if _, err := b.store.History(ctx, "missing", "ds"); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("History err = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestClearEmptiesLog(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, _ := b.store.CreateSession(ctx, "")
			b.store.AppendTurn(ctx, sid, "ds", RoleUser, "q")
			b.store.AppendTurn(ctx, sid, "ds", RoleAssistant, "a")
			b.store.AppendTurn(ctx, sid, "other", RoleUser, "keep me")

			if err := b.store.Clear(ctx, sid, "ds"); err != nil {
				t.Fatalf("Clear: %v", err)
			}

			got, err := b.store.History(ctx, sid, "ds")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("History after Clear = %v, want empty", got)
			}
			if n, err := b.store.TurnCount(ctx, sid, "ds"); err != nil || n != 0 {
				t.Errorf("TurnCount = %d, %v; want 0", n, err)
			}
			if n, _ := b.store.TurnCount(ctx, sid, "other"); n != 1 {
				t.Errorf("other dataset count = %d, want 1", n)
			}
			if sess, _ := b.store.GetSession(ctx, sid); sess == nil {
				t.Error("Clear removed the session")
			}
		})
	}
}

func TestDatasetIsolation(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, _ := b.store.CreateSession(ctx, "")
			b.store.AppendTurn(ctx, sid, "a", RoleUser, "about a")

			got, err := b.store.History(ctx, sid, "b")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("dataset b history = %v, want empty", got)
			}
		})
	}
}

func TestInvalidRole(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, _ := b.store.CreateSession(ctx, "")
			if err := b.store.AppendTurn(ctx, sid, "ds", Role("system"), "x"); !errors.Is(err, ErrInvalidRole) {
				t.Errorf("err = %v, want ErrInvalidRole", err)
			}
		})
	}
}

func TestReapExpired(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			old, _ := b.store.CreateSession(ctx, "")
			b.store.AppendTurn(ctx, old, "ds", RoleUser, "x")
			b.clock.Advance(23 * time.Hour)
			fresh, _ := b.store.CreateSession(ctx, "")
			b.clock.Advance(2 * time.Hour)

			n := NewReaper(b.store, time.Minute).RunOnce(ctx)
			if n != 1 {
				t.Errorf("reaped = %d, want 1", n)
			}
			if _, err := b.store.History(ctx, old, "ds"); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("History(old) err = %v, want ErrSessionNotFound", err)
			}
			if sess, _ := b.store.GetSession(ctx, fresh); sess == nil {
				t.Error("fresh session was reaped")
			}
		})
	}
}

func TestConcurrentAppendsSameKey(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			sid, _ := b.store.CreateSession(ctx, "")

			var wg sync.WaitGroup
			errs := make(chan error, 2*MaxHistory)
			for i := 0; i < 2*MaxHistory; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- b.store.AppendTurn(ctx, sid, "ds", RoleUser, fmt.Sprintf("c-%d", i))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("AppendTurn: %v", err)
				}
			}

			got, err := b.store.History(ctx, sid, "ds")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(got) != MaxHistory {
				t.Fatalf("len = %d, want %d", len(got), MaxHistory)
			}
			seen := make(map[string]bool)
			for i, turn := range got {
				if seen[turn.Content] {
					t.Errorf("duplicate turn %q", turn.Content)
				}
				seen[turn.Content] = true
				if i > 0 && turn.CreatedAt.Before(got[i-1].CreatedAt) {
					t.Errorf("turn %d out of timestamp order", i)
				}
			}
		})
	}
}

type failingTurnStore struct{}

var errDisk = errors.New("disk I/O error")

func (failingTurnStore) CreateSession(context.Context, storage.Session) error { return errDisk }
func (failingTurnStore) GetSession(context.Context, string) (storage.Session, error) {
	return storage.Session{}, errDisk
}
func (failingTurnStore) AppendTurn(context.Context, storage.Turn, int, time.Duration, func() time.Time) error {
	return errDisk
}
func (failingTurnStore) Turns(context.Context, string, string) ([]storage.Turn, error) {
	return nil, errDisk
}
func (failingTurnStore) CountTurns(context.Context, string, string) (int, error) { return 0, errDisk }
func (failingTurnStore) DeleteTurns(context.Context, string, string) error       { return errDisk }
func (failingTurnStore) DeleteSessionsBefore(context.Context, time.Time) (int, error) {
	return 0, errDisk
}

func TestSQLiteStoreUnavailable(t *testing.T) {
	s := NewSQLite(failingTurnStore{})
	ctx := context.Background()

	if _, err := s.History(ctx, "sid", "ds"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("History err = %v, want ErrStoreUnavailable", err)
	}
	if err := s.AppendTurn(ctx, "sid", "ds", RoleUser, "x"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("AppendTurn err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := s.GetSession(ctx, "sid"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("GetSession err = %v, want ErrStoreUnavailable", err)
	}
}

func TestExpiredPredicate(t *testing.T) {
	now := time.Now()
	if Expired(now, now.Add(-SessionTTL), SessionTTL) {
		t.Error("exactly TTL old should not be expired")
	}
	if !Expired(now, now.Add(-SessionTTL-time.Nanosecond), SessionTTL) {
		t.Error("older than TTL should be expired")
	}
}

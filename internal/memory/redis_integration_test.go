//go:build integration

package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func newRedisTestStore(t *testing.T) (*Redis, *mockClock) {
	t.Helper()
	addr := os.Getenv("DATAVIZ_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	r, err := DialRedis(context.Background(), addr, "", 15)
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		r.rdb.FlushDB(context.Background())
		r.Close()
	})
	clk := newMockClock()
	r.clock = clk
	return r, clk
}

func TestRedis_HistoryBound(t *testing.T) {
	r, _ := newRedisTestStore(t)
	ctx := context.Background()
	sid, err := r.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := 0; i < 12; i++ {
		if err := r.AppendTurn(ctx, sid, "ds", RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}
	got, err := r.History(ctx, sid, "ds")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != MaxHistory || got[0].Content != "m2" || got[MaxHistory-1].Content != "m11" {
		t.Errorf("History = %v", got)
	}
}

func TestRedis_ExpiryAndReap(t *testing.T) {
	r, clk := newRedisTestStore(t)
	ctx := context.Background()
	sid, _ := r.CreateSession(ctx, "")
	r.AppendTurn(ctx, sid, "ds", RoleUser, "x")

	clk.Advance(25 * time.Hour)
	if sess, _ := r.GetSession(ctx, sid); sess != nil {
		t.Errorf("GetSession after 25h = %+v, want nil", sess)
	}
	if err := r.AppendTurn(ctx, sid, "ds", RoleUser, "y"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("AppendTurn err = %v, want ErrSessionExpired", err)
	}
	n, err := r.ReapExpired(ctx)
	if err != nil || n != 1 {
		t.Errorf("ReapExpired = %d, %v; want 1", n, err)
	}
}

func TestRedis_KeysOutliveSessionTTL(t *testing.T) {
	r, _ := newRedisTestStore(t)
	ctx := context.Background()
	sid, err := r.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := r.AppendTurn(ctx, sid, "ds", RoleUser, "x"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	for _, key := range []string{sessionKey(sid), logKey(sid, "ds"), logIndexKey(sid)} {
		ttl, err := r.rdb.TTL(ctx, key).Result()
		if err != nil {
			t.Fatalf("TTL %s: %v", key, err)
		}
		if ttl <= SessionTTL {
			t.Errorf("TTL %s = %s, want more than %s", key, ttl, SessionTTL)
		}
	}
}

func TestRedis_Clear(t *testing.T) {
	r, _ := newRedisTestStore(t)
	ctx := context.Background()
	sid, _ := r.CreateSession(ctx, "")
	r.AppendTurn(ctx, sid, "ds", RoleUser, "x")
	if err := r.Clear(ctx, sid, "ds"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := r.TurnCount(ctx, sid, "ds"); n != 0 {
		t.Errorf("TurnCount = %d, want 0", n)
	}
}

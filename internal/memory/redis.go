package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix     = "dataviz:"
	maxWatchRetries = 8
)

// Redis stores each (session, dataset) log as one JSON value, rewritten under
// an optimistic WATCH transaction so concurrent appends never lose turns.
// Keys carry a TTL of twice the session TTL as a backstop, so an idle session
// is still present, and reported as expired, once Expired says so.
type Redis struct {
	rdb   redis.UniversalClient
	clock Clock
	ttl   time.Duration
	keep  int
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb, clock: realClock{}, ttl: SessionTTL, keep: MaxHistory}
}

func (r *Redis) keyTTL() time.Duration { return 2 * r.ttl }

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// redisReader is satisfied by clients and by WATCHed transactions.
type redisReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

func sessionKey(id string) string   { return redisPrefix + "session:" + id }
func logIndexKey(id string) string  { return redisPrefix + "logs:" + id }
func logKey(sid, did string) string { return redisPrefix + "log:" + sid + ":" + did }

func encodeTime(t time.Time) string { return strconv.FormatInt(t.UnixNano(), 10) }

func decodeTime(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

func (r *Redis) CreateSession(ctx context.Context, profileTag string) (string, error) {
	now := r.clock.Now()
	id := uuid.NewString()
	key := sessionKey(id)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"profile_tag": profileTag,
			"created_at":  encodeTime(now),
			"last_active": encodeTime(now),
		})
		pipe.Expire(ctx, key, r.keyTTL())
		return nil
	})
	if err != nil {
		return "", unavailable("creating session", err)
	}
	return id, nil
}

func (r *Redis) GetSession(ctx context.Context, id string) (*Session, error) {
	fields, err := r.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, unavailable("reading session", err)
	}
	sess, err := parseSession(id, fields)
	if err != nil || sess == nil {
		return nil, err
	}
	if Expired(r.clock.Now(), sess.LastActive, r.ttl) {
		return nil, nil
	}
	return sess, nil
}

func parseSession(id string, fields map[string]string) (*Session, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	created, err := decodeTime(fields["created_at"])
	if err != nil {
		return nil, unavailable("decoding session", err)
	}
	last, err := decodeTime(fields["last_active"])
	if err != nil {
		return nil, unavailable("decoding session", err)
	}
	return &Session{ID: id, ProfileTag: fields["profile_tag"], CreatedAt: created, LastActive: last}, nil
}

func (r *Redis) AppendTurn(ctx context.Context, sessionID, datasetID string, role Role, content string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	skey, lkey, ikey := sessionKey(sessionID), logKey(sessionID, datasetID), logIndexKey(sessionID)

	txf := func(tx *redis.Tx) error {
		if err := r.checkWith(ctx, tx, sessionID); err != nil {
			return err
		}
		turns, err := readLog(ctx, tx, lkey)
		if err != nil {
			return err
		}

		now := r.clock.Now()
		turns = append(turns, Turn{Role: role, Content: content, CreatedAt: now})
		if len(turns) > r.keep {
			turns = turns[len(turns)-r.keep:]
		}
		data, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("encoding log: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lkey, data, r.keyTTL())
			pipe.HSet(ctx, skey, "last_active", encodeTime(now))
			pipe.Expire(ctx, skey, r.keyTTL())
			pipe.SAdd(ctx, ikey, datasetID)
			pipe.Expire(ctx, ikey, r.keyTTL())
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.rdb.Watch(ctx, txf, skey, lkey)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrStoreUnavailable):
			return err
		default:
			return unavailable("appending turn", err)
		}
	}
	return unavailable("appending turn", fmt.Errorf("gave up after %d conflicting writers", maxWatchRetries))
}

func readLog(ctx context.Context, c redisReader, key string) ([]Turn, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, unavailable("reading history", err)
	}
	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, unavailable("decoding history", err)
	}
	return turns, nil
}

func (r *Redis) History(ctx context.Context, sessionID, datasetID string) ([]Turn, error) {
	if err := r.checkWith(ctx, r.rdb, sessionID); err != nil {
		return nil, err
	}
	return readLog(ctx, r.rdb, logKey(sessionID, datasetID))
}

func (r *Redis) TurnCount(ctx context.Context, sessionID, datasetID string) (int, error) {
	turns, err := r.History(ctx, sessionID, datasetID)
	if err != nil {
		return 0, err
	}
	return len(turns), nil
}

func (r *Redis) Clear(ctx context.Context, sessionID, datasetID string) error {
	if err := r.checkWith(ctx, r.rdb, sessionID); err != nil {
		return err
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, logKey(sessionID, datasetID))
		pipe.SRem(ctx, logIndexKey(sessionID), datasetID)
		return nil
	})
	if err != nil {
		return unavailable("clearing history", err)
	}
	return nil
}

// ReapExpired scans session hashes and deletes those past the TTL along
// with their logs. Key expiry normally gets there first.
func (r *Redis) ReapExpired(ctx context.Context) (int, error) {
	now := r.clock.Now()
	removed := 0

	iter := r.rdb.Scan(ctx, 0, redisPrefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := key[len(redisPrefix+"session:"):]

		raw, err := r.rdb.HGet(ctx, key, "last_active").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, unavailable("reaping sessions", err)
		}
		last, err := decodeTime(raw)
		if err != nil || !Expired(now, last, r.ttl) {
			continue
		}

		datasets, err := r.rdb.SMembers(ctx, logIndexKey(id)).Result()
		if err != nil {
			return removed, unavailable("reaping sessions", err)
		}
		keys := []string{key, logIndexKey(id)}
		for _, did := range datasets {
			keys = append(keys, logKey(id, did))
		}
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return removed, unavailable("reaping sessions", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, unavailable("reaping sessions", err)
	}
	return removed, nil
}

// checkWith loads the session through c (a client or a WATCHed tx).
func (r *Redis) checkWith(ctx context.Context, c redisReader, id string) error {
	fields, err := c.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return unavailable("reading session", err)
	}
	sess, err := parseSession(id, fields)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if Expired(r.clock.Now(), sess.LastActive, r.ttl) {
		return ErrSessionExpired
	}
	return nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when a Redis command fails.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordNotFound is returned when no cached KS exists for a fingerprint.
var ErrRecordNotFound = errors.New("ks record not found")

// ErrRecordCorrupt is returned when a cached blob cannot be decoded.
var ErrRecordCorrupt = errors.New("ks record corrupt")

const invalidatePartnerScript = `
local members = redis.call("SMEMBERS", KEYS[1])
for _, fp in ipairs(members) do
  redis.call("DEL", ARGV[1] .. fp)
end
redis.call("DEL", KEYS[1])
return #members
`

var invalidatePartnerLua = redis.NewScript(invalidatePartnerScript)

// Store caches issued tokens in Redis, keyed by a caller-computed fingerprint of the
// session attributes, so processes sharing a partner account can reuse one KS.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] in the prefix namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ks"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(fingerprint string) string {
	return s.prefix + ":rec:" + fingerprint
}

func (s *Store) partnerKey(partnerID int64) string {
	return s.prefix + ":partner:" + strconv.FormatInt(partnerID, 10)
}

// Put stores rec under fingerprint for ttl. A non-positive ttl stores nothing.
func (s *Store) Put(ctx context.Context, fingerprint string, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	partnerKey := s.partnerKey(rec.PartnerID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(fingerprint), data, ttl)
		pipe.SAdd(ctx, partnerKey, fingerprint)
		pipe.Expire(ctx, partnerKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the record stored under fingerprint.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	return rec, nil
}

// Delete removes the record stored under fingerprint. Deleting a missing record is not
// an error.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	if err := s.redis.Del(ctx, s.key(fingerprint)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidatePartner drops every cached token of partnerID, e.g. after a secret
// rotation. It returns the number of fingerprints that were indexed.
func (s *Store) InvalidatePartner(ctx context.Context, partnerID int64) (int, error) {
	n, err := invalidatePartnerLua.Run(ctx, s.redis,
		[]string{s.partnerKey(partnerID)},
		s.prefix+":rec:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

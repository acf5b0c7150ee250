package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/cache"
)

const (
	cacheGenPrefix  = "appointments:gen:"
	cacheListPrefix = "appointments:list:"
	cacheGenAll     = cacheGenPrefix + "all"
)

// queryCache memoises list results by filter signature. Entries are
// versioned by a generation counter per party; a write through the service
// bumps the generations of both parties, which orphans every cached list that
// could contain the written appointment.
type queryCache struct {
	provider cache.Provider
	ttl      time.Duration
	logger   zerolog.Logger
}

func newQueryCache(provider cache.Provider, ttl time.Duration, logger zerolog.Logger) *queryCache {
	return &queryCache{provider: provider, ttl: ttl, logger: logger}
}

func doctorGenKey(id string) string  { return cacheGenPrefix + "doctor:" + id }
func patientGenKey(id string) string { return cacheGenPrefix + "patient:" + id }

func (q *queryCache) generation(ctx context.Context, key string) (string, error) {
	v, err := q.provider.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (q *queryCache) key(ctx context.Context, f Filter) (string, error) {
	var genKeys []string
	if f.DoctorID != "" {
		genKeys = append(genKeys, doctorGenKey(f.DoctorID))
	}
	if f.PatientID != "" {
		genKeys = append(genKeys, patientGenKey(f.PatientID))
	}
	if len(genKeys) == 0 {
		genKeys = append(genKeys, cacheGenAll)
	}

	key := cacheListPrefix + f.Signature()
	for _, gk := range genKeys {
		gen, err := q.generation(ctx, gk)
		if err != nil {
			return "", err
		}
		key += ";g=" + gen
	}
	return key, nil
}

// lookup returns the key for f under the current generations and the result
// cached there. Cache failures count as misses; when the key itself cannot be
// computed it comes back empty.
func (q *queryCache) lookup(ctx context.Context, f Filter) (string, []*Appointment, bool) {
	key, err := q.key(ctx, f)
	if err != nil {
		q.logger.Warn().Err(err).Msg("query cache unavailable")
		return "", nil, false
	}
	raw, err := q.provider.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			q.logger.Warn().Err(err).Str("key", key).Msg("query cache read failed")
		}
		return key, nil, false
	}
	var items []*Appointment
	if err := json.Unmarshal(raw, &items); err != nil {
		q.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt cache entry")
		return key, nil, false
	}
	return key, items, true
}

// put stores items under a key obtained from lookup before the store was read.
func (q *queryCache) put(ctx context.Context, key string, items []*Appointment) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := q.provider.Set(ctx, key, raw, q.ttl); err != nil {
		q.logger.Warn().Err(err).Str("key", key).Msg("query cache write failed")
	}
}

// invalidate bumps the generations that scope lists containing a.
func (q *queryCache) invalidate(ctx context.Context, a *Appointment) {
	gen := []byte(uuid.NewString())
	for _, key := range []string{doctorGenKey(a.DoctorID), patientGenKey(a.PatientID), cacheGenAll} {
		if err := q.provider.Set(ctx, key, gen, 0); err != nil {
			q.logger.Warn().Err(err).Str("key", key).Msg("query cache invalidation failed")
		}
	}
}

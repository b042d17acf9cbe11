package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

// CatalogRepository caches the question catalog in Redis and falls back to
// a loader on cache miss. Questions are stored as:
//
//	HSET catalog:questions {number} {question json}
type CatalogRepository struct {
	client *redis.Client
	loader catalog.Loader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader catalog.Loader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const catalogKey = "catalog:questions"

func (r *CatalogRepository) GetCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if cat, ok := r.cached(ctx); ok {
		return cat, nil
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cat, ok := r.cached(ctx); ok {
			return cat, nil
		}

		cat, err := catalog.Load(ctx, r.loader)
		if err != nil {
			return nil, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, catalogKey)
		for _, q := range cat.Questions() {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, catalogKey, strconv.Itoa(q.Number), raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, catalogKey, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("cache catalog: %v", err)
		}
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*catalog.Catalog), nil
}

// cached rebuilds the catalog from the hash. A damaged entry counts as a miss.
func (r *CatalogRepository) cached(ctx context.Context) (*catalog.Catalog, bool) {
	fields, err := r.client.HGetAll(ctx, catalogKey).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	questions := make([]domain.Question, 0, len(fields))
	for _, raw := range fields {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		questions = append(questions, q)
	}
	cat, err := catalog.New(questions)
	if err != nil {
		return nil, false
	}
	return cat, true
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// Package redis caches embedding vectors in front of an embedding provider.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

const keyPrefix = "cra:emb:"

// ModelEmbedder is an embedder that can name the model behind its vectors.
type ModelEmbedder interface {
	ports.Embedder
	Model() string
}

type store interface {
	// MGet returns one entry per key; nil marks a miss.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisStore struct {
	client *goredis.Client
}

func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

func (s redisStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[i] = []byte(str)
		}
	}
	return out, nil
}

func (s redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// CachedEmbedder serves vectors from Redis and falls through to the wrapped
// embedder on a miss. Cache errors are treated as misses.
type CachedEmbedder struct {
	next  ModelEmbedder
	store store
	ttl   time.Duration
}

func NewCachedEmbedder(client *goredis.Client, next ModelEmbedder, ttl time.Duration) *CachedEmbedder {
	return newCachedEmbedder(redisStore{client: client}, next, ttl)
}

func newCachedEmbedder(s store, next ModelEmbedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, store: s, ttl: ttl}
}

func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if cached := c.lookup(ctx, []string{key}); cached[0] != nil {
		return cached[0], nil
	}
	vector, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, vector)
	return vector, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) []domain.EmbeddingResult {
	results := make([]domain.EmbeddingResult, len(texts))
	if len(texts) == 0 {
		return results
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}
	cached := c.lookup(ctx, keys)

	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i := range texts {
		if cached[i] != nil {
			results[i].Vector = cached[i]
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return results
	}

	fresh := c.next.EmbedBatch(ctx, missTexts)
	for j, idx := range missIdx {
		if j >= len(fresh) {
			results[idx].Err = fmt.Errorf("embedding result missing for item %d", idx)
			continue
		}
		results[idx] = fresh[j]
		if fresh[j].Err == nil {
			c.save(ctx, keys[idx], fresh[j].Vector)
		}
	}
	return results
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.next.Model() + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	raw, err := c.store.MGet(ctx, keys)
	if err != nil {
		slog.Warn("embedding_cache_get_failed", "keys", len(keys), "error", err)
		return out
	}
	for i := range keys {
		if i < len(raw) && raw[i] != nil {
			out[i] = decodeVector(raw[i])
		}
	}
	return out
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	if err := c.store.Set(ctx, key, encodeVector(vector), c.ttl); err != nil {
		slog.Warn("embedding_cache_set_failed", "error", err)
	}
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) []float32 {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

type HybridSearchConfig struct {
	PerPage     int
	Timeout     time.Duration
	Concurrency int
	// Boosts multiplies fused scores per partition; missing entries mean 1.
	Boosts map[string]float64
}

// HybridSearch fans vector and lexical queries out over partitions and fuses
// the per-set normalized scores into one ranking.
type HybridSearch struct {
	store ports.IndexStore
	cfg   HybridSearchConfig
}

func NewHybridSearch(store ports.IndexStore, cfg HybridSearchConfig) *HybridSearch {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &HybridSearch{store: store, cfg: cfg}
}

type partitionHits struct {
	vector    []domain.SearchHit
	lexical   []domain.SearchHit
	vectorErr error
	lexErr    error
}

type fusionEntry struct {
	result    domain.FusedResult
	vec       float64
	lex       float64
	partition int
	seq       int
}

// Search never fails: partitions whose calls error or time out contribute no
// hits. A side with zero weight is not queried; a nil vector forces
// lexical-only search.
func (s *HybridSearch) Search(
	ctx context.Context,
	question string,
	vector []float32,
	partitions []string,
	alpha float64,
	topK int,
) []domain.FusedResult {
	if len(partitions) == 0 {
		return []domain.FusedResult{}
	}
	alpha = clampAlpha(alpha)
	if len(vector) == 0 {
		alpha = 0
	}
	question = strings.TrimSpace(question)
	useVector := alpha > 0 && len(vector) > 0
	useLexical := alpha < 1 && question != ""

	collected := make([]partitionHits, len(partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, partition := range partitions {
		g.Go(func() error {
			collected[i] = s.searchPartition(gctx, partition, question, vector, useVector, useLexical)
			return nil
		})
	}
	_ = g.Wait()

	entries := make(map[string]*fusionEntry)
	order := make([]*fusionEntry, 0)
	failed := 0
	for i, partition := range partitions {
		hits := collected[i]
		if (!useVector || hits.vectorErr != nil) && (!useLexical || hits.lexErr != nil) {
			failed++
		}

		vecScores := dedupeSide(hits.vector, func(h domain.SearchHit) (float64, bool) {
			if h.VectorDistance == nil {
				return 0, false
			}
			return distanceToSimilarity(*h.VectorDistance), true
		})
		lexScores := dedupeSide(hits.lexical, func(h domain.SearchHit) (float64, bool) {
			if h.LexicalScore == nil {
				return 0, false
			}
			return *h.LexicalScore, true
		})

		lookup := func(hit domain.SearchHit) *fusionEntry {
			key := partition + "\x00" + hit.ChunkID
			if entry, ok := entries[key]; ok {
				return entry
			}
			entry := &fusionEntry{
				result: domain.FusedResult{
					Partition: partition,
					ChunkID:   hit.ChunkID,
					Content:   hit.Content,
					Title:     hit.Title,
					URL:       hit.URL,
				},
				partition: i,
				seq:       len(order),
			}
			entries[key] = entry
			order = append(order, entry)
			return entry
		}

		for j, norm := range minMaxNormalize(vecScores.scores) {
			lookup(vecScores.hits[j]).vec = norm
		}
		for j, norm := range minMaxNormalize(lexScores.scores) {
			entry := lookup(lexScores.hits[j])
			entry.lex = norm
			fillMissing(&entry.result, lexScores.hits[j])
		}
	}

	if failed == len(partitions) {
		slog.Warn("hybrid_search_all_partitions_failed", "partitions", len(partitions))
	}

	for _, entry := range order {
		fused := alpha*entry.vec + (1-alpha)*entry.lex
		entry.result.Score = fused * s.boost(entry.result.Partition)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].result.Score != order[j].result.Score {
			return order[i].result.Score > order[j].result.Score
		}
		if order[i].partition != order[j].partition {
			return order[i].partition < order[j].partition
		}
		return order[i].seq < order[j].seq
	})

	if topK <= 0 || topK > len(order) {
		topK = len(order)
	}
	out := make([]domain.FusedResult, 0, topK)
	for _, entry := range order[:topK] {
		out = append(out, entry.result)
	}
	return out
}

func (s *HybridSearch) searchPartition(
	ctx context.Context,
	partition, question string,
	vector []float32,
	useVector, useLexical bool,
) partitionHits {
	var (
		out partitionHits
		wg  sync.WaitGroup
	)
	if useVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := s.callContext(ctx)
			defer cancel()
			out.vector, out.vectorErr = s.store.SearchVector(callCtx, partition, vector, s.cfg.PerPage)
			if out.vectorErr != nil {
				out.vector = nil
				slog.Warn("hybrid_search_call_failed", "partition", partition, "mode", "vector", "error", out.vectorErr)
			}
		}()
	}
	if useLexical {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := s.callContext(ctx)
			defer cancel()
			out.lexical, out.lexErr = s.store.SearchLexical(callCtx, partition, question, domain.ContentField, s.cfg.PerPage)
			if out.lexErr != nil {
				out.lexical = nil
				slog.Warn("hybrid_search_call_failed", "partition", partition, "mode", "lexical", "error", out.lexErr)
			}
		}()
	}
	wg.Wait()
	return out
}

func (s *HybridSearch) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func (s *HybridSearch) boost(partition string) float64 {
	if b, ok := s.cfg.Boosts[partition]; ok && b > 0 {
		return b
	}
	return 1
}

type sideScores struct {
	hits   []domain.SearchHit
	scores []float64
}

// dedupeSide keeps one hit per chunk id in first-seen order with the
// highest raw score among its duplicates.
func dedupeSide(hits []domain.SearchHit, score func(domain.SearchHit) (float64, bool)) sideScores {
	out := sideScores{}
	index := make(map[string]int, len(hits))
	for _, hit := range hits {
		value, ok := score(hit)
		if !ok || hit.ChunkID == "" {
			continue
		}
		if pos, seen := index[hit.ChunkID]; seen {
			if value > out.scores[pos] {
				out.scores[pos] = value
			}
			continue
		}
		index[hit.ChunkID] = len(out.hits)
		out.hits = append(out.hits, hit)
		out.scores = append(out.scores, value)
	}
	return out
}

func fillMissing(dst *domain.FusedResult, hit domain.SearchHit) {
	if dst.Content == "" {
		dst.Content = hit.Content
	}
	if dst.Title == "" {
		dst.Title = hit.Title
	}
	if dst.URL == "" {
		dst.URL = hit.URL
	}
}

func clampAlpha(alpha float64) float64 {
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}

package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

const (
	defaultDistanceThreshold  = 0.3
	defaultPromotionThreshold = 0.7
)

// ClassifierConfig thresholds are used as given, zero included; negative
// values fall back to the defaults.
type ClassifierConfig struct {
	DistanceThreshold  float64
	PromotionThreshold float64
	Timeout            time.Duration
	Concurrency        int
}

// PartitionClassifier routes a question to the single partition whose best
// match is close enough, or to none (search everything).
type PartitionClassifier struct {
	store      ports.IndexStore
	partitions []string
	cfg        ClassifierConfig
}

func NewPartitionClassifier(store ports.IndexStore, partitions []string, cfg ClassifierConfig) *PartitionClassifier {
	if cfg.DistanceThreshold < 0 {
		cfg.DistanceThreshold = defaultDistanceThreshold
	}
	if cfg.PromotionThreshold < 0 {
		cfg.PromotionThreshold = defaultPromotionThreshold
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &PartitionClassifier{
		store:      store,
		partitions: append([]string(nil), partitions...),
		cfg:        cfg,
	}
}

func (c *PartitionClassifier) Classify(ctx context.Context, vector []float32) domain.ClassificationResult {
	result := domain.ClassificationResult{
		Scores:   []domain.PartitionScore{},
		Selected: []string{},
	}
	if len(vector) == 0 || len(c.partitions) == 0 {
		return result
	}

	similarities := make([]*float64, len(c.partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, partition := range c.partitions {
		g.Go(func() error {
			similarities[i] = c.bestSimilarity(gctx, partition, vector)
			return nil
		})
	}
	_ = g.Wait()

	bestIdx := -1
	for i, sim := range similarities {
		if sim == nil {
			continue
		}
		result.Scores = append(result.Scores, domain.PartitionScore{Partition: c.partitions[i], Similarity: *sim})
		if bestIdx < 0 || *sim > *similarities[bestIdx] {
			bestIdx = i
		}
	}

	if bestIdx >= 0 && *similarities[bestIdx] > c.cfg.PromotionThreshold {
		result.Selected = []string{c.partitions[bestIdx]}
	}
	return result
}

// bestSimilarity returns nil when the partition is excluded: lookup failed,
// returned nothing, or the nearest hit is not within the distance threshold.
func (c *PartitionClassifier) bestSimilarity(ctx context.Context, partition string, vector []float32) *float64 {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	hits, err := c.store.SearchVector(ctx, partition, vector, 1)
	if err != nil {
		slog.Warn("classifier_partition_failed", "partition", partition, "error", err)
		return nil
	}
	if len(hits) == 0 || hits[0].VectorDistance == nil {
		return nil
	}

	distance := *hits[0].VectorDistance
	if distance >= c.cfg.DistanceThreshold {
		return nil
	}
	sim := 1 - distance
	return &sim
}

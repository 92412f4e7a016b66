package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type partitionManifest struct {
	Partitions []domain.PartitionSource `yaml:"partitions"`
}

// DefaultPartitions mirrors the course layout: forum posts plus chapter modules.
func DefaultPartitions() []domain.PartitionSource {
	return []domain.PartitionSource{
		{Name: "discourse_posts", Format: "discourse", Path: "data/discourse/posts.json", BaseURL: "https://discourse.onlinedegree.iitm.ac.in", Boost: 1},
		{Name: "chapters_development_tools", Format: "markdown", Path: "data/chapters/development-tools", Boost: 1},
		{Name: "chapters_deployment_tools", Format: "markdown", Path: "data/chapters/deployment-tools", Boost: 1},
		{Name: "chapters_large_language_models", Format: "markdown", Path: "data/chapters/large-language-models", Boost: 1},
		{Name: "chapters_data_sourcing", Format: "markdown", Path: "data/chapters/data-sourcing", Boost: 1},
		{Name: "chapters_data_preparation", Format: "markdown", Path: "data/chapters/data-preparation", Boost: 1},
		{Name: "chapters_data_analysis", Format: "markdown", Path: "data/chapters/data-analysis", Boost: 1},
		{Name: "chapters_data_visualization", Format: "markdown", Path: "data/chapters/data-visualization", Boost: 1},
		{Name: "chapters_misc", Format: "markdown", Path: "data/chapters/misc", Boost: 1},
	}
}

// LoadPartitions reads the partition manifest. An empty path yields the defaults.
func LoadPartitions(path string) ([]domain.PartitionSource, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPartitions(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partitions file: %w", err)
	}

	var manifest partitionManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse partitions file: %w", err)
	}
	if len(manifest.Partitions) == 0 {
		return nil, fmt.Errorf("partitions file %s declares no partitions", path)
	}

	seen := make(map[string]struct{}, len(manifest.Partitions))
	out := make([]domain.PartitionSource, 0, len(manifest.Partitions))
	for i, p := range manifest.Partitions {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("partition #%d has no name", i+1)
		}
		if _, ok := seen[p.Name]; ok {
			return nil, fmt.Errorf("duplicate partition %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Format == "" {
			p.Format = "markdown"
		}
		if p.Boost <= 0 {
			p.Boost = 1
		}
		out = append(out, p)
	}
	return out, nil
}

// PartitionNames returns partition names in manifest order.
func PartitionNames(sources []domain.PartitionSource) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Name)
	}
	return out
}

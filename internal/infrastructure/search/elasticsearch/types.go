package elasticsearch

import "github.com/kirillkom/course-rag-assistant/internal/core/domain"

type searchHit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source struct {
		ChunkID string `json:"chunk_id"`
		Content string `json:"content"`
		Title   string `json:"title"`
		URL     string `json:"url"`
	} `json:"_source"`
}

func (h searchHit) toDomain(partition string) domain.SearchHit {
	chunkID := h.Source.ChunkID
	if chunkID == "" {
		chunkID = h.ID
	}
	return domain.SearchHit{
		Partition: partition,
		ChunkID:   chunkID,
		Content:   h.Source.Content,
		Title:     h.Source.Title,
		URL:       h.Source.URL,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type indexMapping struct {
	Mappings struct {
		Properties map[string]struct {
			Type string `json:"type"`
			Dims int    `json:"dims"`
		} `json:"properties"`
	} `json:"mappings"`
}

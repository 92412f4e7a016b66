package domain

// Question is one user request. ImageData is optional.
type Question struct {
	Text      string
	ImageData []byte
}

type PartitionScore struct {
	Partition  string  `json:"partition"`
	Similarity float64 `json:"similarity"`
}

// ClassificationResult ranks partitions by best-match similarity. An empty
// Selected set means the question is routed to every partition.
type ClassificationResult struct {
	Scores   []PartitionScore `json:"scores"`
	Selected []string         `json:"selected"`
}

func (r ClassificationResult) Fallback() bool {
	return len(r.Selected) == 0
}

// SearchHit is a raw hit from one search mode in one partition.
type SearchHit struct {
	Partition      string
	ChunkID        string
	Content        string
	Title          string
	URL            string
	LexicalScore   *float64
	VectorDistance *float64
}

// FusedResult is one deduplicated (Partition, ChunkID) entry after fusion.
type FusedResult struct {
	Partition string  `json:"partition"`
	ChunkID   string  `json:"chunk_id"`
	Content   string  `json:"content"`
	Title     string  `json:"title,omitempty"`
	URL       string  `json:"url,omitempty"`
	Score     float64 `json:"score"`
}

type Link struct {
	URL   string `json:"url"`
	Label string `json:"text"`
}

type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
	Links   []Link   `json:"links"`
}

// SourcesFromLinks projects links to their URLs.
func SourcesFromLinks(links []Link) []string {
	out := make([]string, 0, len(links))
	for _, link := range links {
		out = append(out, link.URL)
	}
	return out
}

// OCRSpan is one detected text region reported by the OCR side-channel.
type OCRSpan struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// CompletionRequest is sent to a chat-completion provider.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	JSON         bool
}

type Message struct {
	Role    string
	Content string
}

// CompletionResponse carries the reply text plus raw citations as returned
// by the provider: plain URL strings or {url,label} objects.
type CompletionResponse struct {
	Text      string
	Citations []any
}

package domain

const (
	FieldTypeString    = "string"
	FieldTypeText      = "text"
	FieldTypeTimestamp = "timestamp"
	FieldTypeVector    = "float[]"

	ContentField = "content"
)

type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

type PartitionSchema struct {
	Fields          []Field `json:"fields"`
	VectorDimension int     `json:"vector_dimension"`
}

// Partition is a named, independently searchable index of chunks and vectors.
type Partition struct {
	Name   string          `json:"name"`
	Schema PartitionSchema `json:"schema"`
}

// DefaultSchema is the chunk schema shared by all partitions.
func DefaultSchema(dimension int) PartitionSchema {
	return PartitionSchema{
		Fields: []Field{
			{Name: "chunk_id", Type: FieldTypeString},
			{Name: "parent_id", Type: FieldTypeString},
			{Name: "title", Type: FieldTypeString},
			{Name: "url", Type: FieldTypeString},
			{Name: "timestamp", Type: FieldTypeTimestamp},
			{Name: ContentField, Type: FieldTypeText},
			{Name: "embedding", Type: FieldTypeVector},
		},
		VectorDimension: dimension,
	}
}

// PartitionSource describes where a partition's documents come from.
type PartitionSource struct {
	Name        string  `json:"name" yaml:"name"`
	Format      string  `json:"format" yaml:"format"`
	Path        string  `json:"path" yaml:"path"`
	Description string  `json:"description,omitempty" yaml:"description"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url"`
	Boost       float64 `json:"boost,omitempty" yaml:"boost"`
}

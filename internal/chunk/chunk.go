package chunk

import (
	"encoding/json"
	"fmt"
	"strings"

	"journalrag/internal/apperror"
)

// Weaviate property names of a stored chunk.
const (
	PropChunkID        = "chunkId"
	PropContent        = "content"
	PropSourceDocID    = "sourceDocId"
	PropChunkIndex     = "chunkIndex"
	PropSectionHeading = "sectionHeading"
	PropJournal        = "journal"
	PropDOI            = "doi"
	PropPublishYear    = "publishYear"
	PropLink           = "link"
	PropAttributes     = "attributes"
	PropUsageCount     = "usageCount"
)

// Chunk is a unit of retrievable journal text with its metadata.
type Chunk struct {
	ID             string     `json:"id"`
	SourceDocID    string     `json:"source_doc_id"`
	ChunkIndex     int        `json:"chunk_index"`
	SectionHeading string     `json:"section_heading"`
	Journal        string     `json:"journal"`
	DOI            string     `json:"doi,omitempty"`
	PublishYear    int        `json:"publish_year"`
	Link           string     `json:"link"`
	Attributes     Attributes `json:"attributes"`
	UsageCount     int        `json:"usage_count"`
	Text           string     `json:"text"`
}

// Record is the flattened form handed to the store: id, indexed text and a flat property map.
type Record struct {
	ID         string
	Text       string
	Properties map[string]interface{}
}

// Candidate is a raw similarity-query result.
type Candidate struct {
	Chunk    Chunk
	Distance float64
}

// Hit is a scored retrieval result.
type Hit struct {
	ChunkID     string  `json:"chunk_id"`
	SourceDocID string  `json:"source_doc_id"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

type UsageTotal struct {
	SourceDocID     string `json:"source_doc_id"`
	TotalUsageCount int    `json:"total_usage_count"`
}

// UsageFailure reports an id whose usage increment could not be applied.
type UsageFailure struct {
	ID  string
	Err error
}

func Validate(c Chunk) error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: id is required", apperror.ErrValidation)
	case strings.TrimSpace(c.SourceDocID) == "":
		return fmt.Errorf("%w: source_doc_id is required for chunk %s", apperror.ErrValidation, c.ID)
	case strings.TrimSpace(c.Text) == "":
		return fmt.Errorf("%w: text is required for chunk %s", apperror.ErrValidation, c.ID)
	case c.ChunkIndex < 0:
		return fmt.Errorf("%w: chunk_index must be >= 0 for chunk %s", apperror.ErrValidation, c.ID)
	case c.UsageCount < 0:
		return fmt.Errorf("%w: usage_count must be >= 0 for chunk %s", apperror.ErrValidation, c.ID)
	}
	return nil
}

func ToRecord(c Chunk) Record {
	attrs := []string(c.Attributes)
	if attrs == nil {
		attrs = []string{}
	}
	return Record{
		ID:   c.ID,
		Text: c.Text,
		Properties: map[string]interface{}{
			PropChunkID:        c.ID,
			PropContent:        c.Text,
			PropSourceDocID:    c.SourceDocID,
			PropChunkIndex:     c.ChunkIndex,
			PropSectionHeading: c.SectionHeading,
			PropJournal:        c.Journal,
			PropDOI:            c.DOI,
			PropPublishYear:    c.PublishYear,
			PropLink:           c.Link,
			PropAttributes:     attrs,
			PropUsageCount:     c.UsageCount,
		},
	}
}

// FromProperties rebuilds a Chunk from a decoded Weaviate property map.
func FromProperties(props map[string]interface{}) Chunk {
	c := Chunk{
		ID:             stringProp(props, PropChunkID),
		SourceDocID:    stringProp(props, PropSourceDocID),
		ChunkIndex:     IntProp(props, PropChunkIndex),
		SectionHeading: stringProp(props, PropSectionHeading),
		Journal:        stringProp(props, PropJournal),
		DOI:            stringProp(props, PropDOI),
		PublishYear:    IntProp(props, PropPublishYear),
		Link:           stringProp(props, PropLink),
		UsageCount:     IntProp(props, PropUsageCount),
		Text:           stringProp(props, PropContent),
	}
	switch v := props[PropAttributes].(type) {
	case []interface{}:
		attrs := make(Attributes, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				attrs = append(attrs, s)
			}
		}
		c.Attributes = attrs
	case []string:
		c.Attributes = append(Attributes{}, v...)
	case string:
		c.Attributes = DecodeAttributes(v)
	}
	return c
}

func stringProp(props map[string]interface{}, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

// IntProp reads a numeric property regardless of how the JSON decoder typed it.
func IntProp(props map[string]interface{}, key string) int {
	switch v := props[key].(type) {
	case float64:
		return int(v)
	case float32:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

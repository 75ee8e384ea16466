package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"

	"journalrag/internal/chunk"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// DistanceMetric is the vector index metric. Scores are 1 - distance, which
// stays in [0,1] for cosine distance on normalised embeddings.
const DistanceMetric = "cosine"

// Properties lists the chunk properties of the class. Identifier-like
// fields use field tokenization so Equal filters match whole values.
func Properties() []*models.Property {
	return []*models.Property{
		{Name: chunk.PropChunkID, DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: chunk.PropContent, DataType: []string{"text"}},
		{Name: chunk.PropSourceDocID, DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: chunk.PropChunkIndex, DataType: []string{"int"}},
		{Name: chunk.PropSectionHeading, DataType: []string{"text"}},
		{Name: chunk.PropJournal, DataType: []string{"text"}},
		{Name: chunk.PropDOI, DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: chunk.PropPublishYear, DataType: []string{"int"}},
		{Name: chunk.PropLink, DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: chunk.PropAttributes, DataType: []string{"text[]"}, Tokenization: models.PropertyTokenizationField},
		{Name: chunk.PropUsageCount, DataType: []string{"int"}},
	}
}

// EnsureSchema creates className when missing, otherwise adds any missing
// properties. Existing properties are never altered.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := Properties()

	if !exists {
		class := &models.Class{
			Class:             className,
			Description:       "A text chunk of a journal article",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": DistanceMetric},
			Properties:        properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists, check for missing properties
	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}

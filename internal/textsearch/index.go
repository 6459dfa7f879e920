// Package textsearch keeps a keyword index over stored message texts so
// indexed mail can be inspected by word as well as by similarity.
package textsearch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Doc is the indexed form of a message.
type Doc struct {
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Hit is a keyword search result.
type Hit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Subject string  `json:"subject"`
	Sender  string  `json:"sender"`
}

// Index wraps a bleve index stored next to the vector collection.
type Index struct {
	index bleve.Index
	path  string
}

// Path returns the on-disk location of the collection's text index.
func Path(dir, collection string) string {
	return filepath.Join(dir, collection+".bleve")
}

// Open opens the text index for collection under dir, creating it if it
// does not exist.
func Open(dir, collection string) (*Index, error) {
	path := Path(dir, collection)

	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create text index dir: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create bleve index: %w", err)
		}
		return &Index{index: index, path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &Index{index: index, path: path}, nil
}

// Put indexes doc under id, replacing any earlier version.
func (ix *Index) Put(id string, doc Doc) error {
	if err := ix.index.Index(id, doc); err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	return nil
}

// Search runs a bleve query string against the index and returns at most
// limit hits, best first.
func (ix *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"subject", "sender"}

	res, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if s, ok := h.Fields["subject"].(string); ok {
			hit.Subject = s
		}
		if s, ok := h.Fields["sender"].(string); ok {
			hit.Sender = s
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count() (uint64, error) {
	return ix.index.DocCount()
}

// Reset drops every document by recreating the index in place.
func (ix *Index) Reset() error {
	if err := ix.index.Close(); err != nil {
		return fmt.Errorf("close bleve index: %w", err)
	}
	if err := os.RemoveAll(ix.path); err != nil {
		return fmt.Errorf("reset text index dir: %w", err)
	}
	index, err := bleve.New(ix.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create bleve index: %w", err)
	}
	ix.index = index
	return nil
}

// Close releases the index.
func (ix *Index) Close() error {
	return ix.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	// DefaultField stays _all so unqualified queries match subject and content

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	subjectField := bleve.NewTextFieldMapping()
	subjectField.Store = true
	subjectField.Index = true
	docMapping.AddFieldMappingsAt("subject", subjectField)

	senderField := bleve.NewTextFieldMapping()
	senderField.Store = true
	senderField.Index = true
	senderField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("sender", senderField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

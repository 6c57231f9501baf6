// Package transcripts keeps a full-text index of call transcripts so a flow
// can be started from a search result.
package transcripts

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"
)

const maxBatchSize = 100

// Index is a bleve index of transcript documents.
type Index struct {
	index  bleve.Index
	path   string
	logger *zap.Logger
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float64
	Content string
}

type document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Open opens the index at path, creating it when missing. A corrupted index
// is deleted and recreated.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "transcripts"), zap.String("path", path))

	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		logger.Info("index doesn't exist, creating a new one")
		index, err = bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("error creating new index: %w", err)
		}
	} else if err != nil {
		logger.Warn("error opening index, recreating", zap.Error(err))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("error deleting corrupted index: %w", err)
		}
		index, err = bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("error creating new index after deletion: %w", err)
		}
	}
	return &Index{index: index, path: path, logger: logger}, nil
}

// Rebuild deletes the index at path and opens an empty one.
func Rebuild(path string, logger *zap.Logger) (*Index, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("error deleting index directory: %w", err)
	}
	return Open(path, logger)
}

// NewMemory returns an in-memory index.
func NewMemory() (*Index, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{index: index, logger: zap.NewNop()}, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Add indexes a single transcript.
func (i *Index) Add(id, content string) error {
	return i.index.Index(id, document{ID: id, Content: content})
}

// IndexDir indexes every text file under dir and returns the number of
// documents added. Unreadable files are logged and skipped.
func (i *Index) IndexDir(dir string) (int, error) {
	batch := i.index.NewBatch()
	count := 0
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("error indexing batch: %w", err)
		}
		batch = i.index.NewBatch()
		return nil
	}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && (strings.HasPrefix(info.Name(), ".") || i.isIndexDir(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isTextFile(path) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			i.logger.Warn("error reading file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if err := batch.Index(path, document{ID: path, Content: string(content)}); err != nil {
			i.logger.Warn("error adding document to batch", zap.String("file", path), zap.Error(err))
			return nil
		}
		count++
		if batch.Size() >= maxBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("error walking %s: %w", dir, err)
	}
	if err := flush(); err != nil {
		return count, err
	}
	i.logger.Info("indexing complete", zap.Int("documents", count))
	return count, nil
}

// Search runs a match query and returns at most limit hits, best first.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	req.Fields = []string{"content"}
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("error performing search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if content, ok := h.Fields["content"].(string); ok {
			hit.Content = content
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) isIndexDir(path string) bool {
	if i.path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	indexAbs, err := filepath.Abs(i.path)
	return err == nil && abs == indexAbs
}

// isTextFile sniffs the first 512 bytes of path.
func isTextFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return false
	}
	if n == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(buffer[:n]), "text/")
}

// Package ilsdump reads JSONL extract files produced by the ILS's
// nightly dump job. Each line is an envelope naming the record family
// and carrying the record payload.
package ilsdump

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/source"
)

const (
	SourceID   = "ilsdump"
	SourceName = "ILS JSONL dump"
)

// envelope is one line of the dump file.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Adapter implements the Source interface for a JSONL dump file.
type Adapter struct {
	path   string
	lines  []envelope
	loaded bool
}

// NewAdapter creates a dump adapter for the given file path.
func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return SourceID
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return SourceName
}

// SupportsIncremental returns false: a dump file is a point-in-time
// extract, each file replaces what it covers.
func (a *Adapter) SupportsIncremental() bool {
	return false
}

// FetchBatch fetches a batch of records from the dump file.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) (source.RecordBatch, string, error) {
	var batch source.RecordBatch

	if !a.loaded {
		if err := a.load(); err != nil {
			return batch, "", fmt.Errorf("failed to load dump: %w", err)
		}
		a.loaded = true
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil {
			return batch, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}
	if startIndex >= len(a.lines) {
		return batch, "", nil
	}

	endIndex := startIndex + limit
	if endIndex > len(a.lines) {
		endIndex = len(a.lines)
	}

	for i := startIndex; i < endIndex; i++ {
		select {
		case <-ctx.Done():
			return source.RecordBatch{}, "", ctx.Err()
		default:
		}

		env := a.lines[i]
		switch env.Type {
		case "location":
			var loc domain.Location
			if err := json.Unmarshal(env.Data, &loc); err != nil {
				return source.RecordBatch{}, "", fmt.Errorf("line %d: bad location: %w", i+1, err)
			}
			batch.Locations = append(batch.Locations, loc)
		case "bib":
			var bib domain.BibRecord
			if err := json.Unmarshal(env.Data, &bib); err != nil {
				return source.RecordBatch{}, "", fmt.Errorf("line %d: bad bib: %w", i+1, err)
			}
			batch.Bibs = append(batch.Bibs, bib)
		case "item":
			var item domain.ItemRecord
			if err := json.Unmarshal(env.Data, &item); err != nil {
				return source.RecordBatch{}, "", fmt.Errorf("line %d: bad item: %w", i+1, err)
			}
			batch.Items = append(batch.Items, item)
		default:
			return source.RecordBatch{}, "", fmt.Errorf("line %d: unknown record type %q", i+1, env.Type)
		}
	}

	nextCursor := ""
	if endIndex < len(a.lines) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return batch, nextCursor, nil
}

func (a *Adapter) load() error {
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Bib envelopes with many items can exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		a.lines = append(a.lines, env)
	}
	return scanner.Err()
}

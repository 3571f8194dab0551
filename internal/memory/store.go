// Package memory answers substring queries against a JSON file of memory records
// maintained by an external tool.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const (
	// DefaultPath is where the external memory tool writes its records
	DefaultPath = ".nemp/memories.json"
	// MaxResults caps the matches returned per query
	MaxResults = 5
	// NoMatchMessage accompanies an empty result
	NoMatchMessage = "No matching memories found"

	SourceNemp  = "nemp"
	SourceLocal = "local"
)

// Result is returned to clients verbatim.
type Result struct {
	Query   string            `json:"query"`
	Results []json.RawMessage `json:"results"`
	Count   int               `json:"count"`
	Message string            `json:"message,omitempty"`
	Source  string            `json:"source"`
}

// Store reads the memory file on every query; the file is owned by another
// process and may change at any time.
type Store struct {
	path     string
	readFile func(string) ([]byte, error)
}

// NewStore creates a store for the given file path. An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, readFile: os.ReadFile}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load returns every record in file order. exists is false when the file is absent,
// which is not an error.
func (s *Store) Load(ctx context.Context) (records []json.RawMessage, exists bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := s.readFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read memory file: %w", err)
	}

	records, err = parseRecords(data)
	if err != nil {
		return nil, true, fmt.Errorf("parse memory file %s: %w", s.path, err)
	}
	return records, true, nil
}

// Query returns up to MaxResults records whose compact JSON form contains text,
// compared case-insensitively.
func (s *Store) Query(ctx context.Context, text string) (Result, error) {
	records, exists, err := s.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	needle := strings.ToLower(text)
	matches := make([]json.RawMessage, 0, MaxResults)
	for _, rec := range records {
		if strings.Contains(strings.ToLower(string(rec)), needle) {
			matches = append(matches, rec)
			if len(matches) == MaxResults {
				break
			}
		}
	}

	res := Result{
		Query:   text,
		Results: matches,
		Count:   len(matches),
		Source:  SourceNemp,
	}
	if len(matches) == 0 {
		res.Message = NoMatchMessage
		if !exists {
			res.Source = SourceLocal
		}
	}
	return res, nil
}

// parseRecords accepts a JSON array, or an object whose values are taken in
// document order. Each record is canonicalized so matching never sees formatting
// or escape sequences.
func parseRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	var raw []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
	case '{':
		values, err := objectValues(trimmed)
		if err != nil {
			return nil, err
		}
		raw = values
	default:
		return nil, errors.New("expected a JSON array or object")
	}

	records := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		canon, err := canonicalize(r)
		if err != nil {
			return nil, err
		}
		records = append(records, json.RawMessage(canon))
	}
	return records, nil
}

// objectValues returns the member values of a JSON object in document order.
// Duplicate keys keep the position of their first occurrence and the last value.
func objectValues(data []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		if i, seen := index[key]; seen {
			values[i] = v
			continue
		}
		index[key] = len(values)
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return values, nil
}

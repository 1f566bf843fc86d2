// Package importer reads chart-of-accounts feeds and runs them through the
// hierarchy resolver against live storage.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// Parser converts a feed into import records, numbering rows from 1.
type Parser interface {
	Parse(r io.Reader) ([]model.ImportRecord, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a feed file waiting in the inbox.
type FileInfo struct {
	Name   string
	Path   string
	Format string
	Size   int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// Formats returns the registered format names, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ForPath picks a parser by file extension.
func (r *Registry) ForPath(path string) (Parser, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	p := r.Get(ext)
	if p == nil {
		return nil, fmt.Errorf("no parser for %q (known formats: %s)", filepath.Base(path), strings.Join(r.Formats(), ", "))
	}
	return p, nil
}

// ParseFile opens path and parses it with format, or by extension when
// format is empty.
func (r *Registry) ParseFile(path, format string) ([]model.ImportRecord, error) {
	var p Parser
	if format != "" {
		if p = r.Get(format); p == nil {
			return nil, fmt.Errorf("unknown feed format %q", format)
		}
	} else {
		var err error
		if p, err = r.ForPath(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()

	records, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CSVParser{})
	r.Register(&JSONParser{})
	return r
}

// processedDir is the inbox subdirectory that holds imported feeds.
const processedDir = "processed"

// Scan returns the feed files in inbox that some parser in r understands.
func (r *Registry) Scan(inbox string) ([]FileInfo, error) {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(e.Name())), ".")
		if r.Get(format) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name:   e.Name(),
			Path:   filepath.Join(inbox, e.Name()),
			Format: format,
			Size:   info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a feed from the inbox to inbox/processed/.
func MarkProcessed(inbox, fileName string) error {
	src := filepath.Join(inbox, fileName)
	dstDir := filepath.Join(inbox, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

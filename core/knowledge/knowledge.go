// Package knowledge renders and loads the sales knowledge base given to the
// pre-call planner.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed documents.yaml
var defaultDocuments []byte

// DefaultTruncate is the number of characters of each document passed to the
// planner.
const DefaultTruncate = 3000

// Section is a headed block of a document.
type Section struct {
	Heading string `yaml:"heading"`
	Body    string `yaml:"body"`
}

// Document is one knowledge base file.
type Document struct {
	File     string    `yaml:"file"`
	Title    string    `yaml:"title"`
	Sections []Section `yaml:"sections"`
}

// Library is a set of document definitions.
type Library struct {
	Documents []Document `yaml:"documents"`
}

// DefaultLibrary returns the built-in documents.
func DefaultLibrary() (*Library, error) {
	return ParseLibrary(strings.NewReader(string(defaultDocuments)))
}

// ParseLibrary decodes YAML document definitions.
func ParseLibrary(r io.Reader) (*Library, error) {
	var lib Library
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lib); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	for i, d := range lib.Documents {
		if d.File == "" || d.Title == "" {
			return nil, fmt.Errorf("document %d: file and title are required", i)
		}
		if filepath.Base(d.File) != d.File {
			return nil, fmt.Errorf("document %d: file %q must not contain a path", i, d.File)
		}
	}
	return &lib, nil
}

// Markdown renders the document.
func (d Document) Markdown() string {
	var b strings.Builder
	b.WriteString("# " + d.Title + "\n\n")
	for _, s := range d.Sections {
		b.WriteString("## " + s.Heading + "\n\n")
		b.WriteString(s.Body + "\n\n")
	}
	return b.String()
}

// Render writes every document of lib into dir and returns the written paths.
func Render(dir string, lib *Library) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(lib.Documents))
	for _, d := range lib.Documents {
		p := filepath.Join(dir, d.File)
		if err := os.WriteFile(p, []byte(d.Markdown()), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", d.File, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Entry is a loaded document.
type Entry struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	// Truncated reports whether Content was cut to the limit.
	Truncated bool `json:"truncated"`
}

// Extensions are the file types read from the knowledge directory.
var Extensions = []string{".md", ".txt"}

// LoadDir reads the documents in dir sorted by name, each cut to limit
// characters. A limit of zero or less keeps documents whole. A missing
// directory yields no entries.
func LoadDir(dir string, limit int) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, it := range items {
		if it.IsDir() || !slices.Contains(Extensions, strings.ToLower(filepath.Ext(it.Name()))) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, it.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", it.Name(), err)
		}
		e := Entry{Name: it.Name(), Content: string(data)}
		if r := []rune(e.Content); limit > 0 && len(r) > limit {
			e.Content = string(r[:limit])
			e.Truncated = true
		}
		out = append(out, e)
	}
	return out, nil
}

// Base is a reloadable, concurrency-safe view of the knowledge directory.
type Base struct {
	dir   string
	limit int

	mu      sync.RWMutex
	entries []Entry
}

// NewBase loads dir once.
func NewBase(dir string, limit int) (*Base, error) {
	b := &Base{dir: dir, limit: limit}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Dir returns the watched directory.
func (b *Base) Dir() string { return b.dir }

// Reload rereads the directory.
func (b *Base) Reload() error {
	entries, err := LoadDir(b.dir, b.limit)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	return nil
}

// Entries returns a copy of the loaded documents.
func (b *Base) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.entries)
}

package pageviews

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed pagenames.yml
var defaultPageNames []byte

// PrefixRule names every path that starts with Prefix.
type PrefixRule struct {
	Prefix string `yaml:"prefix"`
	Name   string `yaml:"name"`
}

// PageNameTable is the configuration behind page name derivation.
type PageNameTable struct {
	Pages    map[string]string `yaml:"pages"`
	Prefixes []PrefixRule      `yaml:"prefixes"`
}

// PageNamer derives a display name for a path. It is immutable once built
// and safe for concurrent use.
type PageNamer struct {
	pages    map[string]string
	prefixes []PrefixRule
}

// NewPageNamer copies table into a new namer.
func NewPageNamer(table PageNameTable) *PageNamer {
	pages := make(map[string]string, len(table.Pages))
	for path, name := range table.Pages {
		pages[normalizePath(path)] = name
	}
	prefixes := make([]PrefixRule, 0, len(table.Prefixes))
	for _, rule := range table.Prefixes {
		if rule.Prefix == "" || rule.Name == "" {
			continue
		}
		prefixes = append(prefixes, rule)
	}
	return &PageNamer{
		pages:    pages,
		prefixes: prefixes,
	}
}

// ParsePageNameTable decodes a YAML page name table.
func ParsePageNameTable(data []byte) (PageNameTable, error) {
	var table PageNameTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return PageNameTable{}, fmt.Errorf("parse page names: %w", err)
	}
	return table, nil
}

// DefaultPageNamer returns the namer built from the embedded table.
func DefaultPageNamer() *PageNamer {
	table, err := ParsePageNameTable(defaultPageNames)
	if err != nil {
		panic(err)
	}
	return NewPageNamer(table)
}

// LoadPageNamer reads a YAML table from path, or the embedded default when
// path is empty.
func LoadPageNamer(path string) (*PageNamer, error) {
	if path == "" {
		return DefaultPageNamer(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page names %s: %w", path, err)
	}
	table, err := ParsePageNameTable(data)
	if err != nil {
		return nil, err
	}
	return NewPageNamer(table), nil
}

// Name returns the display name for path: exact table match, then the first
// matching prefix rule, then the title-cased last path segment.
func (n *PageNamer) Name(path string) string {
	clean := normalizePath(path)
	if name, ok := n.pages[clean]; ok {
		return name
	}

	for _, rule := range n.prefixes {
		if strings.HasPrefix(clean, rule.Prefix) {
			return rule.Name
		}
	}

	return n.fallback(clean)
}

func (n *PageNamer) fallback(clean string) string {
	segment := clean[strings.LastIndex(clean, "/")+1:]
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
	segment = strings.Join(strings.Fields(segment), " ")
	if segment == "" {
		return "Home"
	}
	// Casers are stateful, so one per call.
	return cases.Title(language.English).String(segment)
}

// normalizePath strips query string, fragment and trailing slashes.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

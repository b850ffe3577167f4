package labels

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

//go:embed catalogs/*.yaml
var builtin embed.FS

// DefaultLanguage is the language the deployment was written for.
const DefaultLanguage = "zh-TW"

// Catalog selects a Table by language preference.
type Catalog struct {
	tags    []language.Tag
	tables  []*Table
	matcher language.Matcher
}

// NewCatalog builds a catalog; the table whose language matches fallback is
// used when no preference matches.
func NewCatalog(fallback string, tables ...*Table) (*Catalog, error) {
	if len(tables) == 0 {
		return nil, errors.New("catalog has no tables")
	}
	want, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback language %q: %w", fallback, err)
	}

	c := &Catalog{}
	byTag := make(map[language.Tag]*Table, len(tables))
	for _, t := range tables {
		if _, ok := byTag[t.lang]; !ok {
			c.tags = append(c.tags, t.lang)
		}
		// later tables replace earlier ones, which is how overrides win
		byTag[t.lang] = t
	}
	first := -1
	for i, tag := range c.tags {
		if tag == want {
			first = i
		}
	}
	if first < 0 {
		return nil, fmt.Errorf("no label table for fallback language %s", want)
	}
	// language.NewMatcher treats the first supported tag as the default
	c.tags[0], c.tags[first] = c.tags[first], c.tags[0]
	for _, tag := range c.tags {
		c.tables = append(c.tables, byTag[tag])
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// LoadCatalog reads the embedded tables and then every *.yaml file in dir,
// which may add languages or replace embedded ones. dir may be empty.
func LoadCatalog(fallback, dir string) (*Catalog, error) {
	tables, err := readTables(builtin, "catalogs")
	if err != nil {
		return nil, err
	}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("label override directory: %w", err)
		}
		extra, err := readTables(os.DirFS(dir), ".")
		if err != nil {
			return nil, fmt.Errorf("label override directory %s: %w", dir, err)
		}
		tables = append(tables, extra...)
	}
	return NewCatalog(fallback, tables...)
}

func readTables(fsys fs.FS, dir string) ([]*Table, error) {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(dir, "*.yaml")))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	tables := make([]*Table, 0, len(matches))
	for _, name := range matches {
		payload, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		t, err := ParseTable(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// Match picks the best table for the given preferences. Each preference may be
// a single tag ("en") or a full Accept-Language header; earlier preferences
// win. Unparseable preferences are ignored.
func (c *Catalog) Match(prefs ...string) *Table {
	var desired []language.Tag
	for _, pref := range prefs {
		pref = strings.TrimSpace(pref)
		if pref == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		desired = append(desired, tags...)
	}
	if len(desired) == 0 {
		return c.tables[0]
	}
	_, index, conf := c.matcher.Match(desired...)
	if conf == language.No {
		return c.tables[0]
	}
	return c.tables[index]
}

// Default is the fallback table.
func (c *Catalog) Default() *Table {
	return c.tables[0]
}

// Languages lists the available languages, fallback first.
func (c *Catalog) Languages() []language.Tag {
	return append([]language.Tag(nil), c.tags...)
}

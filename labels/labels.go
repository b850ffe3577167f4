// Package labels translates feature codes and risk tiers into operator facing
// text. Nothing here takes part in inference: tables never reorder, filter or
// alter feature values.
package labels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

// Entry is the display data for one feature code.
type Entry struct {
	Code        string
	Description string
	Importance  float64
	Rank        int

	importanceText string
}

// Display renders the entry as "<rank>.<description>(<code>, importance: <w>)".
func (e Entry) Display() string {
	return fmt.Sprintf("%d.%s(%s, importance: %s)", e.Rank, e.Description, e.Code, e.importanceText)
}

// Tier holds the wording for one risk tier.
type Tier struct {
	Tier     int    `yaml:"tier"`
	Name     string `yaml:"name"`
	Severity string `yaml:"severity"`
	Guidance string `yaml:"guidance"`
}

// Text is the page chrome of one language.
type Text struct {
	Title         string `yaml:"title"`
	FormHeading   string `yaml:"form_heading"`
	Submit        string `yaml:"submit"`
	ResultHeading string `yaml:"result_heading"`
	TierPrefix    string `yaml:"tier_prefix"`
	Confidence    string `yaml:"confidence"`
	Distribution  string `yaml:"distribution"`
	Probability   string `yaml:"probability"`
	HelpPrefix    string `yaml:"help_prefix"`
	ErrorPrefix   string `yaml:"error_prefix"`
}

var severities = map[string]bool{"success": true, "warning": true, "danger": true, "info": true}

type tableDocument struct {
	Language string `yaml:"language"`
	Text     Text   `yaml:"text"`
	Tiers    []Tier `yaml:"tiers"`
	Features []struct {
		Code        string `yaml:"code"`
		Description string `yaml:"description"`
		Importance  string `yaml:"importance"`
	} `yaml:"features"`
}

// Table is the label data of a single language. It is read-only after parsing.
type Table struct {
	lang    language.Tag
	text    Text
	entries map[string]Entry
	order   []string
	tiers   map[int]Tier
}

// ParseTable decodes one YAML catalog.
func ParseTable(payload []byte) (*Table, error) {
	var doc tableDocument
	if err := yaml.UnmarshalStrict(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode label table: %w", err)
	}
	if doc.Language == "" {
		return nil, errors.New("label table has no language")
	}
	tag, err := language.Parse(doc.Language)
	if err != nil {
		return nil, fmt.Errorf("label table language %q: %w", doc.Language, err)
	}

	t := &Table{
		lang:    tag,
		text:    doc.Text,
		entries: make(map[string]Entry, len(doc.Features)),
		tiers:   make(map[int]Tier, len(doc.Tiers)),
	}
	for i, f := range doc.Features {
		if f.Code == "" {
			return nil, fmt.Errorf("feature %d has no code", i)
		}
		if _, dup := t.entries[f.Code]; dup {
			return nil, fmt.Errorf("feature code %q listed twice", f.Code)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(f.Importance), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %q importance: %w", f.Code, err)
		}
		t.entries[f.Code] = Entry{
			Code:           f.Code,
			Description:    f.Description,
			Importance:     weight,
			Rank:           i + 1,
			importanceText: strings.TrimSpace(f.Importance),
		}
		t.order = append(t.order, f.Code)
	}
	for _, tier := range doc.Tiers {
		if tier.Tier < 1 {
			return nil, fmt.Errorf("tier %d must be 1 or greater", tier.Tier)
		}
		if !severities[tier.Severity] {
			return nil, fmt.Errorf("tier %d has unknown severity %q", tier.Tier, tier.Severity)
		}
		if _, dup := t.tiers[tier.Tier]; dup {
			return nil, fmt.Errorf("tier %d listed twice", tier.Tier)
		}
		t.tiers[tier.Tier] = tier
	}
	return t, nil
}

func (t *Table) Language() language.Tag { return t.lang }
func (t *Table) Text() Text             { return t.text }

// Lookup returns the entry for code, if the table has one.
func (t *Table) Lookup(code string) (Entry, bool) {
	e, ok := t.entries[code]
	return e, ok
}

// LabelFor returns the display string for code, or code itself when the table
// has no entry for it.
func (t *Table) LabelFor(code string) string {
	if e, ok := t.entries[code]; ok {
		return e.Display()
	}
	return code
}

// Help is the auxiliary text shown next to an input: the raw code.
func (t *Table) Help(code string) string {
	if t.text.HelpPrefix == "" {
		return code
	}
	return t.text.HelpPrefix + ": " + code
}

// Tier returns the wording for tier, falling back to a bare "Level N" entry.
func (t *Table) Tier(tier int) Tier {
	if w, ok := t.tiers[tier]; ok {
		return w
	}
	return Tier{Tier: tier, Name: LevelLabel(tier), Severity: "info"}
}

// LevelLabel names a tier on the probability chart.
func LevelLabel(tier int) string {
	return "Level " + strconv.Itoa(tier)
}

// Stale compares the table with a schema. unlabeled lists schema codes without
// an entry, unknown lists entries the schema does not contain.
func (t *Table) Stale(schema []string) (unlabeled, unknown []string) {
	seen := make(map[string]bool, len(schema))
	for _, code := range schema {
		seen[code] = true
		if _, ok := t.entries[code]; !ok {
			unlabeled = append(unlabeled, code)
		}
	}
	for _, code := range t.order {
		if !seen[code] {
			unknown = append(unknown, code)
		}
	}
	return unlabeled, unknown
}

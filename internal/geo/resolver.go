package geo

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	resolverZipRe = regexp.MustCompile(`^\d{5}$`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

type phraseEntry struct {
	phrase string
	zip    string
}

// Resolver maps free-text locality phrases to canonical postal codes using a
// curated table. The table is data, not code: it ships as a small YAML file
// so new areas can be added without a redeploy.
type Resolver struct {
	entries []phraseEntry
}

// LoadResolver reads a YAML file of the form `phrase: "14606"`.
func LoadResolver(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var table map[string]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse locations file %q: %w", path, err)
	}

	for phrase, zip := range table {
		if !resolverZipRe.MatchString(strings.TrimSpace(zip)) {
			return nil, fmt.Errorf("locations file %q: %q maps to invalid ZIP %q", path, phrase, zip)
		}
	}

	return NewResolver(table), nil
}

// NewResolver builds a resolver from an in-memory table.
func NewResolver(table map[string]string) *Resolver {
	entries := make([]phraseEntry, 0, len(table))
	for phrase, zip := range table {
		entries = append(entries, phraseEntry{
			phrase: normalizePhrase(phrase),
			zip:    strings.TrimSpace(zip),
		})
	}

	// Longest phrase first so "west side of rochester" beats "rochester".
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].phrase) != len(entries[j].phrase) {
			return len(entries[i].phrase) > len(entries[j].phrase)
		}
		return entries[i].phrase < entries[j].phrase
	})

	return &Resolver{entries: entries}
}

// Resolve returns the canonical postal code for a locality phrase, the input
// itself when it already is a 5-digit ZIP, and "" when nothing matches.
func (r *Resolver) Resolve(input string) string {
	normalized := normalizePhrase(input)
	if normalized == "" || normalized == "null" {
		return ""
	}

	if resolverZipRe.MatchString(normalized) {
		return normalized
	}

	for _, e := range r.entries {
		if strings.Contains(normalized, e.phrase) {
			return e.zip
		}
	}

	return ""
}

func normalizePhrase(s string) string {
	return spacesRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

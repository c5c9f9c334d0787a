package taskstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Slugify reduces a query string to a filesystem-safe slug: lowercase
// alphanumerics with single dashes, capped at 50 runes. The result depends
// only on the input so generated filenames are reproducible.
func Slugify(s string) string {
	var b strings.Builder
	dash := true // suppress leading dash
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if runes := []rune(slug); len(runes) > 50 {
		slug = strings.Trim(string(runes[:50]), "-")
	}
	if slug == "" {
		slug = "research"
	}
	return slug
}

// ResearchDocPath is deterministic for a given query and date.
func (s *Store) ResearchDocPath(query string, date time.Time) string {
	name := fmt.Sprintf("%s_%s.md", date.Format("2006-01-02"), Slugify(query))
	return filepath.Join(s.ResearchDir(), name)
}

// WriteResearchDoc saves one research session as a Markdown document and
// returns its path. Re-running with identical inputs rewrites the same bytes.
func (s *Store) WriteResearchDoc(query, result string, date time.Time) (string, error) {
	if err := os.MkdirAll(s.ResearchDir(), 0o755); err != nil {
		return "", fmt.Errorf("create research dir: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: Research Session\n")
	fmt.Fprintf(&b, "query: %q\n", query)
	fmt.Fprintf(&b, "date: %s\n", date.Format("2006-01-02"))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", query)
	b.WriteString(result)
	if !strings.HasSuffix(result, "\n") {
		b.WriteByte('\n')
	}

	path := s.ResearchDocPath(query, date)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write research doc: %w", err)
	}
	return path, nil
}

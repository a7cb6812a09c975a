package domain

import "strings"

// Metadata is the stock listing information generated for one image.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Clone returns a copy that shares no memory with m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Keywords != nil {
		out.Keywords = make([]string, len(m.Keywords))
		copy(out.Keywords, m.Keywords)
	}
	return out
}

// ParseExclusions splits a comma-separated keyword list into lowercase,
// trimmed tokens. Empty tokens are dropped.
func ParseExclusions(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FilterKeywords removes every keyword that equals, ignoring case, one of
// the exclusion tokens. Order of the remaining keywords is preserved.
func FilterKeywords(keywords []string, exclusions []string) []string {
	out := make([]string, 0, len(keywords))
	if len(exclusions) == 0 {
		return append(out, keywords...)
	}

	excluded := make(map[string]struct{}, len(exclusions))
	for _, e := range exclusions {
		excluded[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}

	for _, k := range keywords {
		if _, skip := excluded[strings.ToLower(k)]; skip {
			continue
		}
		out = append(out, k)
	}
	return out
}

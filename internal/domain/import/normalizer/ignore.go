package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatternIgnore drops statement rows whose description matches MatchText.
// '*' matches any run of characters; matching ignores case.
type PatternIgnore struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	MatchText   string    `json:"match_text"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *PatternIgnore) OwnerID() uuid.UUID { return p.UserID }
func (p *PatternIgnore) Created() time.Time { return p.CreatedAt }

// IgnoreFilter is a compiled set of ignore patterns.
type IgnoreFilter struct {
	patterns []*regexp.Regexp
}

// NewIgnoreFilter compiles ignores. Blank patterns are dropped.
func NewIgnoreFilter(ignores []PatternIgnore) *IgnoreFilter {
	f := &IgnoreFilter{}
	for _, ig := range ignores {
		if re := CompileGlob(ig.MatchText); re != nil {
			f.patterns = append(f.patterns, re)
		}
	}
	return f
}

// CompileGlob turns a '*' glob into an anchored, case-insensitive regexp.
func CompileGlob(glob string) *regexp.Regexp {
	glob = strings.TrimSpace(glob)
	if glob == "" {
		return nil
	}
	parts := strings.Split(glob, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile(`(?is)^` + strings.Join(parts, ".*") + `$`)
}

// Match reports whether description hits any ignore pattern.
func (f *IgnoreFilter) Match(description string) bool {
	if f == nil {
		return false
	}
	d := strings.TrimSpace(description)
	for _, re := range f.patterns {
		if re.MatchString(d) {
			return true
		}
	}
	return false
}

// Len returns the number of active patterns.
func (f *IgnoreFilter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

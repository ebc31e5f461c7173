package filter

import (
	"regexp"
	"strings"
)

// Term is a case-insensitive title matcher: either a plain substring or a regex.
type Term struct {
	plain string
	regex *regexp.Regexp
}

// CompileTerms compiles raw term strings. Terms wrapped in /slashes/ are regexes;
// an invalid regex is matched as a plain substring of the whole string, slashes
// included. Blank terms are skipped.
func CompileTerms(terms []string) []Term {
	compiled := make([]Term, 0, len(terms))
	for _, raw := range terms {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if len(trimmed) >= 3 && trimmed[0] == '/' && trimmed[len(trimmed)-1] == '/' {
			if re, err := regexp.Compile("(?i)" + trimmed[1:len(trimmed)-1]); err == nil {
				compiled = append(compiled, Term{regex: re})
				continue
			}
		}
		compiled = append(compiled, Term{plain: strings.ToLower(trimmed)})
	}
	return compiled
}

// Match reports whether title matches t.
func (t Term) Match(title string) bool {
	if t.regex != nil {
		return t.regex.MatchString(title)
	}
	return strings.Contains(strings.ToLower(title), t.plain)
}

// MatchesAny reports whether title matches any of terms. False when terms is empty.
func MatchesAny(title string, terms []Term) bool {
	for _, t := range terms {
		if t.Match(title) {
			return true
		}
	}
	return false
}

// TitleFilter admits a title when it matches no exclude term and, if any include
// terms are set, at least one of them.
type TitleFilter struct {
	include []Term
	exclude []Term
}

func NewTitleFilter(include, exclude []string) TitleFilter {
	return TitleFilter{include: CompileTerms(include), exclude: CompileTerms(exclude)}
}

func (f TitleFilter) Allows(title string) bool {
	if MatchesAny(title, f.exclude) {
		return false
	}
	return len(f.include) == 0 || MatchesAny(title, f.include)
}

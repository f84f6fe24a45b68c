package gatekeeper

import (
	"fmt"
	"regexp"
	"strings"
)

// PathClass is the admission classification of a request path.
type PathClass int

const (
	PathPublic PathClass = iota
	PathProtected
)

func (c PathClass) String() string {
	if c == PathPublic {
		return "public"
	}
	return "protected"
}

// PathClassifier decides whether a path requires an authenticated session.
// Rule sets are fixed at construction and the classifier is safe for
// concurrent use.
type PathClassifier struct {
	prefixes []string
	patterns []*regexp.Regexp
}

// NewPathClassifier compiles the rule sets. A malformed pattern is a
// configuration error and fails process startup rather than a request.
func NewPathClassifier(prefixes, patterns []string) (*PathClassifier, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid public path pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &PathClassifier{
		prefixes: prefixes,
		patterns: compiled,
	}, nil
}

// Classify returns PathPublic when the path equals or is a sub-path of an
// exact-prefix rule, or matches one of the patterns. Everything else is
// protected. Prefix rules are checked first; the rule sets are disjoint so
// ordering between the two has no behavioral effect.
func (c *PathClassifier) Classify(path string) PathClass {
	for _, prefix := range c.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return PathPublic
		}
	}

	for _, re := range c.patterns {
		if re.MatchString(path) {
			return PathPublic
		}
	}

	return PathProtected
}

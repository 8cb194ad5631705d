package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slotwire/slotwire/internal/model"
)

// Matches reports whether an event satisfies a rule's pattern.
//
// Match semantics per kind:
//   - exact: case-sensitive equality with the event label
//   - contains: case-insensitive substring test
//   - regex: anchored at the start of the label; authors must write a
//     leading wildcard to match anywhere
//
// Fails closed: an unknown kind, empty value, or uncompilable regex never
// matches. The failure is logged here and never surfaces to the resolver.
//
// Source scoping is a separate primitive: model.SourceFilter.Matches.
func Matches(pattern model.Pattern, event model.Event) bool {
	if pattern.Value == "" {
		slog.Warn("pattern has empty value, treating as non-match",
			"kind", pattern.Kind,
		)
		return false
	}

	switch pattern.Kind {
	case model.MatchExact:
		return event.Label == pattern.Value

	case model.MatchContains:
		return strings.Contains(strings.ToLower(event.Label), strings.ToLower(pattern.Value))

	case model.MatchRegex:
		re, err := compileAnchored(pattern.Value)
		if err != nil {
			slog.Warn("invalid regex pattern, treating as non-match",
				"pattern", pattern.Value,
				"error", err,
			)
			return false
		}
		return re.MatchString(event.Label)

	default:
		slog.Warn("unsupported pattern kind, treating as non-match",
			"kind", pattern.Kind,
		)
		return false
	}
}

// compileAnchored compiles an expression anchored at position 0.
// The non-capturing group keeps alternations like "a|b" anchored as a
// whole rather than anchoring only the first branch.
func compileAnchored(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + expr + `)`)
}

// ValidatePattern checks a pattern for authoring errors: unknown kinds,
// empty values, uncompilable regexes. Pure, no side effects; exposed for
// reuse by external configuration validation.
func ValidatePattern(pattern model.Pattern) error {
	switch pattern.Kind {
	case model.MatchExact, model.MatchContains, model.MatchRegex:
	default:
		return fmt.Errorf("unsupported pattern kind %q (supported: %s, %s, %s)",
			pattern.Kind, model.MatchExact, model.MatchContains, model.MatchRegex)
	}

	if strings.TrimSpace(pattern.Value) == "" {
		return fmt.Errorf("pattern value cannot be empty")
	}

	if pattern.Kind == model.MatchRegex {
		if _, err := compileAnchored(pattern.Value); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	}

	return nil
}

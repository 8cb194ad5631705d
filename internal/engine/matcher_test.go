package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotwire/slotwire/internal/model"
)

func event(label string) model.Event {
	return model.Event{SourceID: "cal.test", Label: label}
}

func TestMatchesExact(t *testing.T) {
	pattern := model.Pattern{Kind: model.MatchExact, Value: "Morning Standup"}

	assert.True(t, Matches(pattern, event("Morning Standup")))
	assert.False(t, Matches(pattern, event("morning standup")), "exact is case-sensitive")
	assert.False(t, Matches(pattern, event("Morning Standup + notes")))
}

func TestMatchesContains(t *testing.T) {
	pattern := model.Pattern{Kind: model.MatchContains, Value: "standup"}

	assert.True(t, Matches(pattern, event("Morning STANDUP")))
	assert.True(t, Matches(pattern, event("standup")))
	assert.False(t, Matches(pattern, event("Stand-up")))
}

func TestMatchesRegexAnchored(t *testing.T) {
	pattern := model.Pattern{Kind: model.MatchRegex, Value: `Meeting \d+`}

	assert.True(t, Matches(pattern, event("Meeting 42")))
	assert.True(t, Matches(pattern, event("Meeting 42 (review)")), "prefix match suffices")
	assert.False(t, Matches(pattern, event("Weekly Meeting 42")), "anchored at the start")
}

func TestMatchesRegexAlternationAnchoredAsWhole(t *testing.T) {
	pattern := model.Pattern{Kind: model.MatchRegex, Value: "lunch|dinner"}

	assert.True(t, Matches(pattern, event("dinner plans")))
	assert.False(t, Matches(pattern, event("late dinner")),
		"all alternation branches are anchored")
}

func TestMatchesFailsClosed(t *testing.T) {
	assert.False(t, Matches(model.Pattern{Kind: model.MatchRegex, Value: "(unclosed"}, event("anything")))
	assert.False(t, Matches(model.Pattern{Kind: "glob", Value: "x*"}, event("xy")))
	assert.False(t, Matches(model.Pattern{Kind: model.MatchExact, Value: ""}, event("")))
}

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern model.Pattern
		wantErr bool
	}{
		{"valid exact", model.Pattern{Kind: model.MatchExact, Value: "x"}, false},
		{"valid contains", model.Pattern{Kind: model.MatchContains, Value: "x"}, false},
		{"valid regex", model.Pattern{Kind: model.MatchRegex, Value: `\d+`}, false},
		{"unknown kind", model.Pattern{Kind: "glob", Value: "x"}, true},
		{"empty value", model.Pattern{Kind: model.MatchExact, Value: "  "}, true},
		{"bad regex", model.Pattern{Kind: model.MatchRegex, Value: "(unclosed"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePattern(tt.pattern)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package review

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/crev/internal/models"
)

const verdictJSON = `{
  "summary": "Well-structured component.",
  "criteria": [
    { "name": "definition", "passed": true, "notes": "defineComponent present" },
    { "name": "sandbox", "passed": true, "notes": "no host access" },
    { "name": "docs", "passed": false, "notes": "no README" },
    { "name": "validation", "passed": true, "notes": "validators on all args" }
  ],
  "suggestions": "Add a README."
}`

func TestParseVerdict_FenceVariants(t *testing.T) {
	variants := map[string]string{
		"json fence":    "```json\n" + verdictJSON + "\n```",
		"generic fence": "```\n" + verdictJSON + "\n```",
		"bare":          verdictJSON,
		"padded":        "\n\n  " + verdictJSON + "  \n",
	}

	var parsed []*ParsedVerdict
	for name, text := range variants {
		t.Run(name, func(t *testing.T) {
			v, err := ParseVerdict(text)
			require.NoError(t, err)
			parsed = append(parsed, v)
		})
	}

	// All variants of the same payload must yield the identical object.
	require.Len(t, parsed, len(variants))
	for _, v := range parsed[1:] {
		assert.Equal(t, parsed[0], v)
	}

	v := parsed[0]
	assert.Equal(t, "Well-structured component.", v.Summary)
	assert.Equal(t, "Add a README.", v.Suggestions)
	require.Len(t, v.Criteria, 4)
	assert.Equal(t, "definition", v.Criteria[0].Name)
	assert.False(t, v.Criteria[2].Passed)
}

func TestParseVerdict_MalformedJSON(t *testing.T) {
	for _, text := range []string{
		"I could not grade this component, sorry.",
		"```json\nnot json\n```",
		"",
		"```\n{truncated",
	} {
		_, err := ParseVerdict(text)
		assert.ErrorIs(t, err, ErrMalformedJSON, "input: %q", text)
	}
}

func TestParseVerdict_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"missing summary", `{"criteria": [], "suggestions": ""}`},
		{"missing criteria", `{"summary": "s", "suggestions": ""}`},
		{"missing suggestions", `{"summary": "s", "criteria": []}`},
		{"summary wrong type", `{"summary": 42, "criteria": [], "suggestions": ""}`},
		{"criteria wrong type", `{"summary": "s", "criteria": "nope", "suggestions": ""}`},
		{"suggestions wrong type", `{"summary": "s", "criteria": [], "suggestions": false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVerdict(tt.json)
			assert.ErrorIs(t, err, ErrUnexpectedShape)
		})
	}
}

func TestAlignCriteria(t *testing.T) {
	t.Run("exact order", func(t *testing.T) {
		got := results(true, false, true, true)
		aligned, err := AlignCriteria(testRubric, got)
		require.NoError(t, err)
		assert.Equal(t, got, aligned)
	})

	t.Run("reordered response matched by name", func(t *testing.T) {
		got := []models.CriterionResult{
			{Name: "docs", Passed: false, Notes: "n3"},
			{Name: "definition", Passed: true, Notes: "n1"},
			{Name: "validation", Passed: true, Notes: "n4"},
			{Name: "sandbox", Passed: true, Notes: "n2"},
		}
		aligned, err := AlignCriteria(testRubric, got)
		require.NoError(t, err)

		assert.Equal(t, "definition", aligned[0].Name)
		assert.Equal(t, "n1", aligned[0].Notes)
		assert.Equal(t, "docs", aligned[2].Name)
		assert.False(t, aligned[2].Passed)
	})

	t.Run("renamed entries accepted positionally at equal length", func(t *testing.T) {
		got := []models.CriterionResult{
			{Name: "1. definition", Passed: true},
			{Name: "2. sandbox", Passed: false},
			{Name: "3. docs", Passed: true},
			{Name: "4. validation", Passed: true},
		}
		aligned, err := AlignCriteria(testRubric, got)
		require.NoError(t, err)

		// Rubric names win; the verdict flags carry over by position.
		assert.Equal(t, "sandbox", aligned[1].Name)
		assert.False(t, aligned[1].Passed)
	})

	t.Run("dropped entry is a mismatch", func(t *testing.T) {
		_, err := AlignCriteria(testRubric, results(true, true, true))
		assert.ErrorIs(t, err, ErrCriteriaShapeMismatch)
	})

	t.Run("extra entry is a mismatch", func(t *testing.T) {
		got := append(results(true, true, true, true), models.CriterionResult{Name: "bonus", Passed: true})
		_, err := AlignCriteria(testRubric, got)
		assert.ErrorIs(t, err, ErrCriteriaShapeMismatch)
	})

	t.Run("empty response is a mismatch", func(t *testing.T) {
		_, err := AlignCriteria(testRubric, nil)
		assert.ErrorIs(t, err, ErrCriteriaShapeMismatch)
	})
}

func TestExtractJSON_UnterminatedFence(t *testing.T) {
	// An opener without a closer falls through to the bare parse, which
	// then fails as malformed rather than panicking.
	_, err := ParseVerdict(fmt.Sprintf("```json\n%s", verdictJSON))
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/rubric"
)

// ErrMalformedJSON indicates the model's text output could not be parsed
// as JSON even after fence stripping.
var ErrMalformedJSON = errors.New("review: malformed JSON in model response")

// ErrUnexpectedShape indicates the parsed JSON is missing a required key
// or has the wrong type for one.
var ErrUnexpectedShape = errors.New("review: unexpected verdict shape")

// ErrCriteriaShapeMismatch indicates the response's criteria could not be
// correlated with the rubric by name or by position.
var ErrCriteriaShapeMismatch = errors.New("review: criteria do not match rubric")

// ParsedVerdict is the validated JSON payload extracted from the model's
// raw text response.
type ParsedVerdict struct {
	Summary     string
	Criteria    []models.CriterionResult
	Suggestions string
}

// stripFence removes a leading/trailing markdown code fence with the
// given opener, returning the inner text and whether the fence matched.
func stripFence(text, opener string) (string, bool) {
	if !strings.HasPrefix(text, opener) {
		return "", false
	}
	inner := strings.TrimPrefix(text, opener)
	idx := strings.LastIndex(inner, "```")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(inner[:idx]), true
}

// extractJSON strips a ```json fence, then a generic ``` fence, then
// falls back to the trimmed text itself.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if inner, ok := stripFence(text, "```json"); ok {
		return inner
	}
	if inner, ok := stripFence(text, "```"); ok {
		return inner
	}
	return text
}

// ParseVerdict extracts and validates the verdict JSON from the raw model
// output. Length and order agreement with the rubric is left to
// AlignCriteria; this layer only checks key presence and types.
func ParseVerdict(text string) (*ParsedVerdict, error) {
	payload := extractJSON(text)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	v := &ParsedVerdict{}

	summaryRaw, ok := raw["summary"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"summary\"", ErrUnexpectedShape)
	}
	if err := json.Unmarshal(summaryRaw, &v.Summary); err != nil {
		return nil, fmt.Errorf("%w: \"summary\" is not a string", ErrUnexpectedShape)
	}

	criteriaRaw, ok := raw["criteria"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"criteria\"", ErrUnexpectedShape)
	}
	if err := json.Unmarshal(criteriaRaw, &v.Criteria); err != nil {
		return nil, fmt.Errorf("%w: \"criteria\" is not an array of criterion results", ErrUnexpectedShape)
	}

	suggestionsRaw, ok := raw["suggestions"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"suggestions\"", ErrUnexpectedShape)
	}
	if err := json.Unmarshal(suggestionsRaw, &v.Suggestions); err != nil {
		return nil, fmt.Errorf("%w: \"suggestions\" is not a string", ErrUnexpectedShape)
	}

	return v, nil
}

// AlignCriteria correlates the model's criterion results with the rubric.
// Matching is by name first, which tolerates a reordered response; when
// the name sets differ, an equal-length response is accepted positionally
// (the model echoed the prompted order but renamed entries). Anything
// else is ErrCriteriaShapeMismatch.
func AlignCriteria(r rubric.Rubric, got []models.CriterionResult) ([]models.CriterionResult, error) {
	byName := make(map[string]models.CriterionResult, len(got))
	for _, c := range got {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = c
		}
	}

	if len(byName) == len(r) && len(got) == len(r) {
		aligned := make([]models.CriterionResult, len(r))
		matched := true
		for i, c := range r {
			res, ok := byName[c.Name]
			if !ok {
				matched = false
				break
			}
			aligned[i] = res
		}
		if matched {
			return aligned, nil
		}
	}

	if len(got) == len(r) {
		aligned := make([]models.CriterionResult, len(r))
		for i := range r {
			aligned[i] = got[i]
			aligned[i].Name = r[i].Name
		}
		return aligned, nil
	}

	return nil, fmt.Errorf("%w: got %d results for %d criteria", ErrCriteriaShapeMismatch, len(got), len(r))
}

// Package rubric defines the fixed, ordered list of checks applied to a
// candidate component during automated review.
package rubric

// Criterion is a single named check. Critical criteria force a failing
// verdict on their own; non-critical failures only downgrade to partial.
type Criterion struct {
	Name             string
	CheckDescription string
	Critical         bool
}

// Rubric is an ordered list of criteria. Order is load-bearing: the
// grading prompt lists criteria in this order and the verdict engine
// correlates model responses back to it.
type Rubric []Criterion

// Names returns the criterion names in rubric order.
func (r Rubric) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// Default returns the production rubric for component submissions.
func Default() Rubric {
	return Rubric{
		{
			Name:             "Valid component definition",
			CheckDescription: "The repository contains a convex.config.ts that calls defineComponent with a non-empty component name and exports the result as the default export.",
			Critical:         true,
		},
		{
			Name:             "Functions use the component API",
			CheckDescription: "Component functions are declared with the component's own query/mutation/action builders and do not reach outside the component's sandbox (no direct access to the host app's tables or environment).",
			Critical:         true,
		},
		{
			Name:             "Clean client exposure",
			CheckDescription: "The component exposes a typed client class or helper functions for host apps to call, rather than requiring consumers to invoke internal function references directly.",
			Critical:         false,
		},
		{
			Name:             "No hardcoded secrets",
			CheckDescription: "No API keys, tokens, or credentials are committed in the source. External services are configured through component arguments or environment configuration.",
			Critical:         true,
		},
		{
			Name:             "Argument validation",
			CheckDescription: "Public functions declare argument validators for every argument rather than accepting untyped input.",
			Critical:         false,
		},
		{
			Name:             "Error handling",
			CheckDescription: "Failure paths (external API errors, missing documents, bad input) surface as thrown errors or explicit result values instead of being silently swallowed.",
			Critical:         false,
		},
		{
			Name:             "Documentation",
			CheckDescription: "Exported functions and the component's installation/usage flow are documented well enough for a host app developer to adopt the component.",
			Critical:         false,
		},
	}
}

// DocRefs returns the reference documentation pointers included in the
// grading prompt so the model judges against current conventions.
func DocRefs() []string {
	return []string{
		"https://docs.convex.dev/components",
		"https://docs.convex.dev/components/authoring",
		"https://docs.convex.dev/functions/validation",
	}
}

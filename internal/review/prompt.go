package review

import (
	"fmt"
	"strings"

	"github.com/get-convex/crev/internal/githost"
	"github.com/get-convex/crev/internal/models"
	"github.com/get-convex/crev/internal/rubric"
)

// BuildPrompt assembles the single-turn grading prompt. Section order is
// load-bearing: the output-format template lists every criterion by name
// in rubric order, and the verdict engine correlates the response back
// against that order.
func BuildPrompt(r rubric.Rubric, pkg *models.Package, files []githost.RepositoryFile, docRefs []string) string {
	var b strings.Builder

	b.WriteString("You are a compliance reviewer for a directory of Convex components. ")
	b.WriteString("Grade the component source code below against each review criterion and return a structured verdict.\n\n")

	if len(docRefs) > 0 {
		b.WriteString("## Reference documentation\n\n")
		for _, ref := range docRefs {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
		b.WriteString("\n")
	}

	b.WriteString("## About components\n\n")
	b.WriteString("A Convex component is a sandboxed package of backend functions and tables ")
	b.WriteString("that host applications install into their own deployment. A valid component ")
	b.WriteString("declares itself in a convex.config.ts definition file and exposes its ")
	b.WriteString("functionality through the component function builders rather than reaching ")
	b.WriteString("into the host app directly.\n\n")

	b.WriteString("## Package under review\n\n")
	fmt.Fprintf(&b, "- Name: %s\n", pkg.Name)
	if pkg.Version != "" {
		fmt.Fprintf(&b, "- Version: %s\n", pkg.Version)
	}
	b.WriteString("\n")

	b.WriteString("## Review criteria\n\n")
	for i, c := range r {
		marker := ""
		if c.Critical {
			marker = " [CRITICAL]"
		}
		fmt.Fprintf(&b, "%d. %s%s: %s\n", i+1, c.Name, marker, c.CheckDescription)
	}
	b.WriteString("\n")

	b.WriteString("## Source files\n\n")
	for _, f := range files {
		fmt.Fprintf(&b, "### %s\n\n```\n%s\n```\n\n", f.Path, f.Content)
	}

	b.WriteString("## Output format\n\n")
	b.WriteString("Respond with ONLY a JSON object in exactly this shape, with the criteria ")
	b.WriteString("array in the same order as the criteria above:\n\n")
	b.WriteString("{\n")
	b.WriteString("  \"summary\": \"one-paragraph overall assessment\",\n")
	b.WriteString("  \"criteria\": [\n")
	for i, c := range r {
		comma := ","
		if i == len(r)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "    { \"name\": %q, \"passed\": true, \"notes\": \"what you found\" }%s\n", c.Name, comma)
	}
	b.WriteString("  ],\n")
	b.WriteString("  \"suggestions\": \"concrete improvements, or an empty string\"\n")
	b.WriteString("}\n")

	return b.String()
}

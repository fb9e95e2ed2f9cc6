package prompt

import (
	"fmt"
	"strings"

	"github.com/virtual-lenny/persona-agent/services/retrieval"
)

// blockSeparator keeps retrieved chunks from bleeding into each other
// during generation.
const blockSeparator = "\n\n---\n\n"

// emptyContext is what the model sees when retrieval produced nothing.
// The persona rules instruct it to say the context is insufficient.
const emptyContext = "(no relevant context was found)"

const personaTemplate = `You are %s, %s.

Answer the user's question using ONLY the context provided below.
Do not add facts, examples, or opinions that are not grounded in the context.
If the context is insufficient to answer clearly, say that directly.

Guidelines:
- Be concise but insightful
- Use clear, simple language
- Prefer practical advice over theory
- Write in a calm, reflective tone
- Do NOT mention that you were given context
- Do NOT reference documents, posts, or sources explicitly

Context:
%s

Question:
%s

Answer:`

// Assembler builds the persona-constrained prompt from retrieval results.
// The template is fixed; context and query are the only variable regions,
// and the query is substituted as opaque data.
type Assembler struct {
	personaName        string
	personaDescription string
}

// NewAssembler creates a new Assembler
func NewAssembler(personaName, personaDescription string) *Assembler {
	if personaDescription == "" {
		personaDescription = "a thoughtful advisor"
	}
	return &Assembler{
		personaName:        personaName,
		personaDescription: personaDescription,
	}
}

// BuildContext concatenates result contents into a single labeled block.
// Never mutated after construction; bounded by the retrieval limit.
func (a *Assembler) BuildContext(results []retrieval.Result) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(results))
	for i, result := range results {
		source := result.Source
		if source == "" {
			source = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d - %s]\n%s", i+1, source, result.Content))
	}

	return strings.Join(blocks, blockSeparator)
}

// BuildPrompt fills the persona template with the context block and query
func (a *Assembler) BuildPrompt(contextBlock, query string) string {
	if contextBlock == "" {
		contextBlock = emptyContext
	}
	return fmt.Sprintf(personaTemplate, a.personaName, a.personaDescription, contextBlock, query)
}

// Assemble is the one-step form: results plus raw query in, prompt out
func (a *Assembler) Assemble(results []retrieval.Result, query string) string {
	return a.BuildPrompt(a.BuildContext(results), query)
}

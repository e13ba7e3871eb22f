package assistant

import (
	"fmt"
	"strings"

	"github.com/neuron-labs/marketd/catalog"
)

const promptInstructions = `Please provide a detailed but concise explanation, focusing on:
1. Direct answers to the question
2. Code references when relevant
3. Security implications if applicable
4. Best practices and recommendations

Keep the response technical but understandable.`

// BuildPrompt assembles the model prompt for a question about a
// catalog contract. The question leads, followed by the source, the
// function references, the contract identity and a fixed instruction
// block.
func BuildPrompt(question, source string, rec catalog.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))

	b.WriteString("Contract source:\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	writeFunctionSection(&b, "Write functions", rec.WriteFunctions)
	writeFunctionSection(&b, "Read functions", rec.ReadFunctions)

	fmt.Fprintf(&b, "Contract name: %s\n", rec.Name)
	fmt.Fprintf(&b, "Contract description: %s\n\n", rec.Description)

	b.WriteString(promptInstructions)

	return b.String()
}

func writeFunctionSection(b *strings.Builder, title string, fns []catalog.FunctionRef) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(fns) == 0 {
		b.WriteString("(none)\n")
	}
	for _, fn := range fns {
		fmt.Fprintf(b, "- %s: %s\n", fn.Name, fn.Signature)
	}
	b.WriteString("\n")
}

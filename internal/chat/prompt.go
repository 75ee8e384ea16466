package chat

import (
	"fmt"
	"strings"

	"journalrag/internal/chunk"
)

// Refusal is the sentence the model must answer with when the context is insufficient.
const Refusal = "I cannot answer this question based on the provided context."

// ContextBlock formats one retrieved chunk for the prompt.
func ContextBlock(h chunk.Hit) string {
	return fmt.Sprintf("Source ID: %s\nContent: %s", h.SourceDocID, h.Text)
}

// BuildPrompt returns the grounded prompt, or the bare question when there is no context.
func BuildPrompt(query string, blocks []string) string {
	if len(blocks) == 0 {
		return query
	}

	var sb strings.Builder
	sb.WriteString("You are a research assistant answering questions about journal articles.\n")
	sb.WriteString("Answer the question using ONLY the context below. Do not use prior knowledge.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Cite every claim inline as [Source: <id>], using the Source ID of the context block it came from.\n")
	sb.WriteString("- If you use several sources, cite each of them.\n")
	sb.WriteString("- If the context does not contain the answer, reply exactly: \"" + Refusal + "\"\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(strings.Join(blocks, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

package pipeline

import (
	"fmt"
	"strings"
)

// answerTemplate is the generation prompt. The placeholders are filled
// with the formatted context block and the user question, in that order.
const answerTemplate = `You are a helpful assistant answering questions about customer care.

Use the following context documents to answer the user's question. If the answer is not in the provided documents, say "I don't have that information in the provided documents."

Context Documents:
%s

User Question: %s

Instructions:
1. Answer based ONLY on the provided documents
2. Be specific and cite which document(s) you used
3. If information is unclear or missing, say so
4. Keep answers concise but complete
5. Use a friendly, informative tone
Answer:`

// formatContext renders retrieved documents as a numbered block. Each
// document carries its source identifier so the model can cite it.
func formatContext(docs []RetrievedDocument) string {
	if len(docs) == 0 {
		return "No documents were retrieved."
	}
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = fmt.Sprintf("Document %d:\n%s\nSource: %s", i+1, doc.Content, doc.SourceID)
	}
	return strings.Join(parts, "\n\n")
}

// buildPrompt assembles the full generation prompt for a question and its
// retrieved documents. Deterministic for a given input.
func buildPrompt(question string, docs []RetrievedDocument) string {
	return fmt.Sprintf(answerTemplate, formatContext(docs), question)
}

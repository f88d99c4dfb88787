package services

import (
	"fmt"
	"strings"

	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/internal/pipeline/retrievers"
)

// lengthHints maps summary length options to prompt instructions.
var lengthHints = map[string]string{
	"short":    "a short summary of 2-3 sentences",
	"medium":   "a concise summary of one to two paragraphs",
	"detailed": "a detailed summary covering all major points",
}

func summaryPrompt(content, lengthHint string) string {
	hint, ok := lengthHints[lengthHint]
	if !ok {
		hint = lengthHints["medium"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a careful summarizer. Write %s of the following material.\n", hint)
	b.WriteString("Use markdown formatting with headings and bullet points where they help.\n")
	b.WriteString("Base the summary only on the provided material; do not add outside knowledge.\n\n")
	b.WriteString("Material:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---")
	return b.String()
}

func chatPrompt(chunks []retrievers.RetrievedChunk, history []models.ConversationTurn, query string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions about the user's documents.\n")

	if len(chunks) > 0 {
		b.WriteString("Answer using only the context below. ")
		b.WriteString("If the context does not contain the answer, say so.\n\nContext:\n")
		for i, retrieved := range chunks {
			fmt.Fprintf(&b, "[%d] %s\n\n", i+1, retrieved.Chunk.Text)
		}
	} else {
		b.WriteString("No relevant document context was found for this question. ")
		b.WriteString("Answer from general knowledge and say that the documents do not cover it.\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\nAnswer:", query)
	return b.String()
}

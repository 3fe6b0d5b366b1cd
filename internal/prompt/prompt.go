// Package prompt assembles the text sent to the language model from the
// retrieved context and the user's question.
package prompt

import (
	"fmt"
	"strings"
)

// Mode selects the instruction block placed ahead of the question.
type Mode string

const (
	// ModeDocument is the neutral document Q&A template used by POST /ask.
	ModeDocument Mode = "document"

	// ModeAviation is the aviation assistant template used by the
	// interactive chat.
	ModeAviation Mode = "aviation"
)

// Fixed phrases the model is told to reply with. Callers and tests match on
// them, so they must not change.
const (
	// NotAvailable is the document-mode reply when the context lacks the answer.
	NotAvailable = "information not available"

	// AviationNotAvailable is the aviation-mode reply when the context lacks
	// the answer.
	AviationNotAvailable = "This information is not available in the provided document(s)."

	// OffTopic is the aviation-mode reply for questions outside aviation.
	OffTopic = "I can only answer aviation-related questions."
)

const documentInstructions = "Answer ONLY using the provided context.\n" +
	"If the answer is not present, say " + NotAvailable + "."

const aviationInstructions = "You are an aviation assistant. Answer the question using ONLY the provided context.\n" +
	"If the answer is not present in the context, say \"" + AviationNotAvailable + "\"\n" +
	"If the question is not related to aviation, say \"" + OffTopic + "\"\n" +
	"If the message is a greeting, respond with a greeting.\n" +
	"If the user is ending the conversation, respond with a farewell."

// ParseMode maps a configuration value to a Mode. An empty string selects
// ModeDocument.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDocument:
		return ModeDocument, nil
	case ModeAviation:
		return ModeAviation, nil
	default:
		return "", fmt.Errorf("prompt: unknown mode %q (valid: document, aviation)", s)
	}
}

// Build returns the full prompt: the mode's instructions, the question and the
// context block, in that order. It is a pure function of its inputs.
// Unknown modes fall back to ModeDocument.
func Build(mode Mode, contextBlock, question string) string {
	instructions := documentInstructions
	if mode == ModeAviation {
		instructions = aviationInstructions
	}

	var b strings.Builder
	b.Grow(len(instructions) + len(question) + len(contextBlock) + 32)
	b.WriteString(instructions)
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n")
	return b.String()
}

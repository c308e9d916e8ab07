package usecase

import (
	"strings"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

const classificationPrompt = `You are a triage classifier for a medical information assistant.
Decide whether the user's message is about health, medicine, symptoms, diseases, conditions,
treatments, medication, mental health or wellbeing.
Reply with exactly one word: MEDICAL or GENERAL.
No punctuation, no explanation.`

const categorizationPrompt = `You are a question categorizer. For each question, return:
- The main category (choose one: Symptoms & Diagnosis, Treatment & Medication, Prevention & Lifestyle, General)
- If the question is about a specific disease or condition, add it after a comma (e.g. Symptoms & Diagnosis, Diabetes)
- If not about a specific disease/condition, just return the category

Return ONLY the category (and disease/condition if present), nothing else.

Examples:
"What are the symptoms of diabetes?" -> Symptoms & Diagnosis, Diabetes
"How is diabetes treated?" -> Treatment & Medication, Diabetes
"How can I lower my cholesterol naturally?" -> Prevention & Lifestyle, Cholesterol
"Tell me a joke" -> General`

const basePersonaPrompt = `You are MedHelp, a friendly medical information assistant.
Reply conversationally and take the whole conversation into account: when the user asks a
follow-up ("what about it?", "is that serious?"), resolve the reference against the previous
messages before answering.`

const groundedInstruction = `Use the knowledge base excerpts below as your primary reference.
Prefer them whenever they are relevant, but do not rely on them exclusively: complement them
with general medical knowledge when they do not fully cover the question.
Do not add a sources list or cite references yourself; the knowledge base references are
appended to your reply automatically.

Knowledge base excerpts:
`

const generalKnowledgeInstruction = `No knowledge base excerpts matched this question, so answer from general medical knowledge.
End your reply with a "Sources:" section that lists 2-3 reputable sources by name
(for example national health services or major medical charities), one per line, each line starting with "- ".`

// buildSystemPrompt assembles the generation instruction for one answer.
func buildSystemPrompt(groundingContext string, hasContext, inDomain bool) string {
	var b strings.Builder
	b.WriteString(basePersonaPrompt)
	switch {
	case hasContext:
		b.WriteString("\n\n")
		b.WriteString(groundedInstruction)
		b.WriteString(groundingContext)
	case inDomain:
		b.WriteString("\n\n")
		b.WriteString(generalKnowledgeInstruction)
	}
	return b.String()
}

const maxBlendTurnRunes = 240

// buildBlendedQuery joins the last few turns with the current question into a compact
// retrieval query.
func buildBlendedQuery(question string, turns []domain.Turn, maxTurns int) string {
	if maxTurns <= 0 || len(turns) == 0 {
		return strings.TrimSpace(question)
	}
	start := len(turns) - maxTurns
	if start < 0 {
		start = 0
	}

	parts := make([]string, 0, maxTurns+1)
	for _, turn := range turns[start:] {
		text := truncateRunes(strings.Join(strings.Fields(turn.Content), " "), maxBlendTurnRunes)
		if text != "" {
			parts = append(parts, text)
		}
	}
	parts = append(parts, strings.TrimSpace(question))
	return strings.Join(parts, " ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

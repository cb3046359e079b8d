package qa

import "docqa/internal/ai"

// FallbackAnswer is what the model is told to say when the sources do not
// cover the question.
const FallbackAnswer = "Not found in the provided pages."

const systemPrompt = `You are a precise academic assistant. Answer questions using ONLY the evidence provided.

Rules:
1. Keep answers concise: 2-6 sentences.
2. Every sentence must cite the page it relies on in the exact form [p. N], where N is a page number shown in the evidence.
3. If the evidence does not contain the answer, reply exactly: "` + FallbackAnswer + `"
4. Do not add facts that are not explicitly stated in the evidence.

Example: "The elastic modulus measures stiffness [p. 42]. Steel is typically around 200 GPa [p. 43]."`

// BuildMessages returns the chat messages for one question.
func BuildMessages(question, evidenceBlock string) []ai.ChatMessage {
	user := "Question: " + question + "\n\nEvidence:\n" + evidenceBlock + "\n\nProvide a concise answer with citations."
	return []ai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

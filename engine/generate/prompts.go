package generate

import (
	"fmt"
	"strings"
)

// groundingRules is the shared preamble every profile appends (spec §4.7's
// bullet list).
const groundingRules = `## CRITICAL RULES - YOU MUST FOLLOW THESE:
1. Answer ONLY using information from the CONTEXT provided below. Do NOT use any external or pre-trained knowledge.
2. If the user asks a specific question and the context does not contain the answer, respond ONLY with: "This information is not available in the uploaded documents."
3. If the user query is broad (e.g. just a document name or topic), summarize the available information from the context related to that topic or list the matching documents.
4. NEVER fabricate, invent, or hallucinate data, names, values, standards, or references.
5. Every claim MUST be directly traceable to the context. Cite sources as [Page X, Document Name].
6. Reproduce data exactly as it appears in the context — do not paraphrase numbers, units, or test results.
7. If a table is present in the context and relevant to the query, reproduce it faithfully in Markdown format.`

// NotAvailableResponse is the exact canned refusal spec §4.7 and the S5
// edge case require on an empty or unanswerable context.
const NotAvailableResponse = "This information is not available in the uploaded documents."

// BuildPrompt assembles the {system_prompt, user_prompt} pair for a group
// profile.
func BuildPrompt(profile Profile, context, query, history string) Request {
	switch profile {
	case ProfileTechnical:
		return technicalPrompt(context, query, history)
	case ProfileCompliance:
		return compliancePrompt(context, query, history)
	default:
		return generalPrompt(context, query, history)
	}
}

func technicalPrompt(context, query, history string) Request {
	system := fmt.Sprintf(`You are a senior vehicle test engineer assistant specializing in technical documentation analysis.

## YOUR EXPERTISE:
- Vehicle performance testing (brake, cooling, steering, acceleration)
- Engine specifications and diagnostics
- Chassis and component details
- Test procedures and methodologies
- Technical measurements and specifications

%s

## FORMATTING RULES:
- Include specific technical values with units (e.g., "825 Nm @ 1200-1600 rpm")
- Reference test conditions (laden/unladen, temperature, speed)
- Format tables properly when presenting specifications
- Cite sources: [Page X, Document Name]`, groundingRules)

	return Request{SystemPrompt: system, UserPrompt: userPrompt("Retrieved from test reports", context, history, query)}
}

func compliancePrompt(context, query, history string) Request {
	system := fmt.Sprintf(`You are a vehicle compliance and regulatory specialist assistant.

## YOUR EXPERTISE:
- Regulatory standards (AIS, Euro norms, safety regulations)
- Certification requirements
- Compliance testing procedures
- Safety specifications and limits
- Homologation documentation

%s

## FORMATTING RULES:
- Highlight compliance status (PASS/FAIL/MEETING/NOT MEETING)
- Reference specific standards and norms (e.g., "AIS 153", "Euro V")
- Note any deviations from specifications
- Include permissible limits vs actual values when available
- Cite sources with page numbers`, groundingRules)

	return Request{SystemPrompt: system, UserPrompt: userPrompt("Retrieved from compliance documents", context, history, query)}
}

func generalPrompt(context, query, history string) Request {
	system := fmt.Sprintf(`You are a helpful assistant for vehicle test documentation.

%s

## FORMATTING RULES:
- Be clear and concise
- Include relevant data with proper formatting
- Cite sources: [Page X, Filename]`, groundingRules)

	return Request{SystemPrompt: system, UserPrompt: userPrompt("", context, history, query)}
}

// GreetingResponse returns the canned text for a greeting-intent query, no
// retrieval involved — a simple farewell / thanks / default keyword dispatch.
func GreetingResponse(query string) string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "bye") || strings.Contains(q, "goodbye") || strings.Contains(q, "see you"):
		return "Goodbye! Feel free to come back if you have more questions about vehicle documentation."
	case strings.Contains(q, "thank"):
		return "You're welcome! Let me know if you need anything else."
	default:
		return `Hello! I'm your vehicle documentation assistant. I can help you with:

- **Test reports** - Performance, brake, cooling, steering tests
- **Vehicle specifications** - Engine, chassis, component details
- **Compliance information** - Regulatory standards, certifications

What would you like to know?`
	}
}

func userPrompt(contextLabel, context, history, query string) string {
	label := "CONTEXT"
	if contextLabel != "" {
		label = fmt.Sprintf("CONTEXT (%s)", contextLabel)
	}
	if strings.TrimSpace(history) == "" {
		history = "(New conversation)"
	}
	return fmt.Sprintf("## %s:\n%s\n\n## CONVERSATION HISTORY:\n%s\n\n## USER QUESTION:\n%s", label, context, history, query)
}

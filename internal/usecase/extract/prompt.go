package extract

import "strings"

const promptTemplate = `Extract structured information from this support ticket.

Return STRICT JSON ONLY, using this schema:

{
  "summary": "<1-2 line concise summary capturing the core issue and its context>",
  "category": "<Bug | Billing | Login | Performance | Security | Support | Other>",
  "severity": "<Low | Medium | High | Critical>",
  "notes": "<optional: anything the support agent should know; omit if nothing>"
}

Ticket:
"""{{description}}"""
`

func buildPrompt(description string) string {
	return strings.Replace(promptTemplate, "{{description}}", description, 1)
}

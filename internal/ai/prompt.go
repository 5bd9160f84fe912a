package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a web test author. Your task is to turn a natural language request into a test case for the page described to you.

You will receive:
1. A page snapshot with the URL, title and visible interactive elements. Every element has a "uid" and its visible "text".
2. Optionally, the page content rendered as Markdown.
3. A user request describing what to test.

Output a single JSON object:
{
  "name": short case name,
  "description": one sentence goal,
  "operations": [ ... ],
  "validations": [ ... ]
}

Each operation has:
- "action": one of "click", "fill", "wait", "waitForElement"
- "target": the element's id, uid, or visible text (required for click, fill and waitForElement)
- "value": text to enter for fill, milliseconds for wait
- "options": {"timeout": milliseconds} for waitForElement (optional, default 5000)

Each validation has:
- "type": one of "element_exists", "text_contains", "url_contains", "url_equals"
- "target": visible text of the element (element_exists, text_contains)
- "expectedValue": the expected text or URL part

Guidelines:
- Use only targets present in the snapshot, or text you expect to appear after an action
- Prefer a uid when the visible text is ambiguous
- After an action that loads content, add a waitForElement for text that proves it loaded
- End with validations that prove the request succeeded
- Keep the sequence minimal but complete

Example output:
{
  "name": "search for shoes",
  "description": "Searching shows matching products",
  "operations": [
    {"action": "fill", "target": "search", "value": "shoes"},
    {"action": "click", "target": "Search"},
    {"action": "waitForElement", "target": "results for", "options": {"timeout": 3000}}
  ],
  "validations": [
    {"type": "url_contains", "expectedValue": "q=shoes"},
    {"type": "text_contains", "target": "results for", "expectedValue": "shoes"}
  ]
}

Respond ONLY with the JSON object, no explanation or markdown.`

// maxContentBytes bounds the page Markdown sent to the model.
const maxContentBytes = 12000

func buildUserPrompt(page *Page, userPrompt string) (string, error) {
	var b strings.Builder
	if page != nil && page.Snapshot != nil {
		snap, err := json.MarshalIndent(page.Snapshot, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal page snapshot: %w", err)
		}
		b.WriteString("Page snapshot:\n")
		b.Write(snap)
		b.WriteString("\n\n")
	}
	if page != nil && page.Content != "" {
		content := page.Content
		if len(content) > maxContentBytes {
			content = truncate(content, maxContentBytes) + "\n..."
		}
		b.WriteString("Page content:\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	b.WriteString("User request: ")
	b.WriteString(userPrompt)
	return b.String(), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

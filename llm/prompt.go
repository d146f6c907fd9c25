package llm

import (
	"embed"
	"fmt"
	"strings"

	"github.com/m4xw311/genui/protocol"
)

//go:embed templates/*.json
var templateFS embed.FS

// Template names, in the order they are presented to the model.
var templateNames = []string{"form", "list", "card", "confirmation"}

// Template returns one of the built-in starting layouts by name.
func Template(name string) ([]byte, error) {
	return templateFS.ReadFile("templates/" + name + ".json")
}

// RetryPrompt is sent after a reply that could not be used.
func RetryPrompt(problem, query string) string {
	return fmt.Sprintf("Your previous response was invalid. %s You MUST generate a valid response following the A2UI JSON SCHEMA. Please retry: '%s'", problem, query)
}

// UIPrompt returns the system instructions for generating A2UI responses.
func UIPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, `You generate user interfaces. Every reply MUST be an A2UI response.

Rules:
1. Write a short conversational answer first.
2. Then write the delimiter %[1]s on its own line, exactly once.
3. After the delimiter write one raw JSON array of A2UI messages and nothing else.
4. The array MUST validate against the A2UI JSON SCHEMA below.
5. Never repeat the delimiter after the JSON.

Every response must describe the complete surface: start with beginRendering,
define every component with surfaceUpdate, and fill the data with
dataModelUpdate. When asked to change an existing UI, take the JSON after the
delimiter in your previous reply as the current state and emit the full
revised array, not a diff.

Starting patterns:
- forms (contact, signup, survey, settings): FORM
- lists (todo, shopping, search results, notifications): LIST
- cards (profile, product, info, stats): CARD
- confirmations (success, error, status): CONFIRMATION

Adapting a pattern:
- New fields: add a TextField or DateTimeInput, list it in the parent's
  children.explicitList, add a key to dataModelUpdate.contents, and add the
  path to the submit button's action.context.
- New list items: add entries to dataModelUpdate.
- Layout: Row is horizontal, Column is vertical, List repeats a template.
- Labels: edit the literalString values.

Components:
- Text (usageHint: h1, h2, h3, h4, h5, caption, body)
- Icon (accountCircle, add, check, close, delete, edit, error, favorite, help,
  home, info, locationOn, mail, menu, notifications, person, phone, search,
  send, settings, share, star, warning)
- Row, Column, List, Card, Divider
- Button (with action; use the action name %[2]s for forms)
- TextField (shortText, longText, number, date, obscured)
- DateTimeInput
`, protocol.Delimiter, protocol.SubmitFormAction)

	for _, name := range templateNames {
		body, err := Template(name)
		if err != nil {
			continue
		}
		tag := strings.ToUpper(name)
		fmt.Fprintf(&b, "\n---BEGIN %s---\n%s---END %s---\n", tag, body, tag)
	}

	fmt.Fprintf(&b, "\n---BEGIN A2UI JSON SCHEMA---\n%s\n---END A2UI JSON SCHEMA---\n", protocol.Schema())
	return b.String()
}

package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SubmitFormAction is the action name renderers use for form submission.
const SubmitFormAction = "submit_form"

// UserAction is an event raised by a rendered surface, such as a button
// press or a form submission.
type UserAction struct {
	Name              string         `json:"name"`
	SurfaceID         string         `json:"surfaceId,omitempty"`
	SourceComponentID string         `json:"sourceComponentId,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// UnmarshalJSON also accepts "actionName", which some renderers send in
// place of "name".
func (a *UserAction) UnmarshalJSON(b []byte) error {
	type plain UserAction
	var w struct {
		plain
		ActionName string `json:"actionName"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*a = UserAction(w.plain)
	if a.Name == "" {
		a.Name = w.ActionName
	}
	return nil
}

// ActionFromPart extracts a user action from a data part shaped
// {"userAction": {...}}.
func ActionFromPart(p Part) (UserAction, bool) {
	if p.Kind != PartData || len(p.Data) == 0 {
		return UserAction{}, false
	}
	var w struct {
		UserAction *UserAction `json:"userAction"`
	}
	if err := json.Unmarshal(p.Data, &w); err != nil || w.UserAction == nil || w.UserAction.Name == "" {
		return UserAction{}, false
	}
	return *w.UserAction, true
}

// Part wraps the action as a data part.
func (a UserAction) Part() Part {
	b, _ := json.Marshal(map[string]UserAction{"userAction": a})
	return Part{Kind: PartData, Data: b}
}

// Prompt renders the action as the user turn sent to the agent.
func (a UserAction) Prompt() string {
	if a.Name == SubmitFormAction {
		keys := make([]string, 0, len(a.Context))
		for k := range a.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s: %v", k, a.Context[k]))
		}
		return "User submitted a form with the following data: " + strings.Join(fields, ", ")
	}
	ctx := "{}"
	if len(a.Context) > 0 {
		if b, err := json.Marshal(a.Context); err == nil {
			ctx = string(b)
		}
	}
	return fmt.Sprintf("User action: %s with data: %s", a.Name, ctx)
}

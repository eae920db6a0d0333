package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/havenapp/haven/pkg/safety"
)

// ShowResourcesTool surfaces the crisis resource bundle on request.
type ShowResourcesTool struct {
	emergencyContact string
}

func NewShowResourcesTool(emergencyContact string) *ShowResourcesTool {
	return &ShowResourcesTool{emergencyContact: emergencyContact}
}

func (t *ShowResourcesTool) Name() string { return "show_resources" }

func (t *ShowResourcesTool) Description() string {
	return "Show crisis and support resources (hotlines, text lines, helplines) to the user."
}

func (t *ShowResourcesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ShowResourcesTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	bundle := safety.Resources(t.emergencyContact)

	var b strings.Builder
	b.WriteString("Support resources:\n")
	for _, r := range bundle.Resources {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", r.Name, r.Contact, r.Description)
	}
	if bundle.EmergencyContact != "" {
		fmt.Fprintf(&b, "- Personal emergency contact: %s\n", bundle.EmergencyContact)
	}
	return NewResult(strings.TrimRight(b.String(), "\n"))
}

package events

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// approvalDecisionSchema constrains inbound decision payloads. Decisions
// arrive from outside the trust boundary (API clients, Kafka producers), so
// they are schema-checked before anything touches a checkpoint.
var approvalDecisionSchema = map[string]any{
	"type":     "object",
	"required": []any{"workflow_id", "approve", "by"},
	"properties": map[string]any{
		"workflow_id": map[string]any{"type": "string", "minLength": 1},
		"approve":     map[string]any{"type": "boolean"},
		"by":          map[string]any{"type": "string", "minLength": 1},
		"note":        map[string]any{"type": "string"},
	},
	"additionalProperties": false,
}

// ValidateApprovalDecision validates a raw decision payload against the
// approval decision schema.
func ValidateApprovalDecision(payload []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(approvalDecisionSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("validate approval decision: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(problems, "; "))
	}

	return nil
}

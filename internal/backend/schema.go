package backend

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const progressSchemaJSON = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "minLength": 1},
		"current_step": {"type": ["string", "null"]},
		"progress": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
		"message": {"type": ["string", "null"]},
		"results": {"type": ["object", "null"]},
		"error": {"type": ["string", "null"]}
	}
}`

var progressSchema = jsonschema.MustCompileString("progress.json", progressSchemaJSON)

// decodeProgress validates a progress payload before decoding it.
func decodeProgress(data []byte) (*Progress, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	if err := progressSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("progress does not match schema: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}

package bridge

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema is the contract a bridge reply must satisfy before the
// pipeline trusts it. A success must name its output file; a failure must
// carry an error message.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "ok": {"type": "boolean"},
    "output": {"type": "string"},
    "elapsed_ms": {"type": "number", "minimum": 0},
    "error": {"type": "string"},
    "exit_code": {"type": "integer", "minimum": 0, "maximum": 6}
  },
  "required": ["ok"],
  "if": {"properties": {"ok": {"const": true}}},
  "then": {"required": ["ok", "output"]},
  "else": {"required": ["ok", "error"]},
  "additionalProperties": true
}`

var compiledResponseSchema = jsonschema.MustCompileString("bridge-response.json", responseSchema)

// validateResponse checks raw decoded JSON against the response contract.
func validateResponse(doc any) error {
	if err := compiledResponseSchema.Validate(doc); err != nil {
		// Flatten the multi-line validator output for log friendliness.
		msg := strings.ReplaceAll(err.Error(), "\n", " ")
		return fmt.Errorf("%w: %s", ErrBadResponse, msg)
	}
	return nil
}

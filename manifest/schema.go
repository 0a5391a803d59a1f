package manifest

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/anyt-io/pspm-cli"
)

// schemaJSON describes the documented key shape of pspm.json (§4.4): valid
// JSON whose known keys, if present, have the right shape. Unknown keys are
// explicitly allowed (additionalProperties: true) since manifests may carry
// publish-only metadata the core does not interpret.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": true,
  "properties": {
    "dependencies": {"type": "object", "additionalProperties": {"type": "string"}},
    "githubDependencies": {"type": "object", "additionalProperties": {"type": "string"}},
    "localDependencies": {"type": "object", "additionalProperties": {"type": "string"}},
    "agents": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": true,
        "properties": {"skillsDir": {"type": "string"}}
      }
    }
  }
}`

var compiledSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("pspm.json.schema", bytes.NewReader([]byte(schemaJSON))); err != nil {
		panic(errors.Wrap(err, "compiling manifest schema"))
	}
	s, err := c.Compile("pspm.json.schema")
	if err != nil {
		panic(errors.Wrap(err, "compiling manifest schema"))
	}
	return s
}()

// validate checks raw manifest bytes against the schema, translating any
// jsonschema.ValidationError tree into pspm.FieldErrors with dotted paths.
func validate(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &pspm.InputInvalidError{Offending: "pspm.json", Reason: err.Error()}
	}

	if err := compiledSchema.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return &pspm.InputInvalidError{Offending: "pspm.json", Reason: err.Error()}
		}
		return &pspm.InputInvalidError{
			Offending: "pspm.json",
			Reason:    "schema validation failed",
			Fields:    fieldErrors(ve),
		}
	}
	return nil
}

func fieldErrors(ve *jsonschema.ValidationError) []pspm.FieldError {
	var out []pspm.FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			path := "$"
			for _, seg := range e.InstanceLocation {
				path += "." + seg
			}
			out = append(out, pspm.FieldError{Path: path, Reason: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

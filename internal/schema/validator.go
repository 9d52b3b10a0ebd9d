// Package schema validates analysis responses against JSON Schemas before they are merged.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind names a response shape.
type Kind string

const (
	KindTone    Kind = "tone"
	KindContext Kind = "context"
)

// defaultPrinter formats validation failures.
var defaultPrinter = message.NewPrinter(language.English)

const toneSchema = `{
  "type": "object",
  "properties": {
    "score": {"type": "number"},
    "sentiment": {"type": "string"},
    "error": {"type": "string"}
  },
  "anyOf": [
    {"required": ["score", "sentiment"]},
    {"required": ["error"]}
  ]
}`

const contextSchema = `{
  "type": "object",
  "$defs": {
    "list": {"type": "array", "items": {"type": "string"}}
  },
  "properties": {
    "information": {"$ref": "#/$defs/list"},
    "problems": {"$ref": "#/$defs/list"},
    "requests": {"$ref": "#/$defs/list"},
    "concerns": {"$ref": "#/$defs/list"},
    "solutions": {"$ref": "#/$defs/list"},
    "coaching": {"$ref": "#/$defs/list"},
    "error": {"type": "string"}
  }
}`

// Validator holds the compiled response schemas.
type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

// New compiles the built-in schemas.
func New() *Validator {
	return &Validator{schemas: map[Kind]*jsonschema.Schema{
		KindTone:    mustCompile(toneSchema, "tone.schema.json"),
		KindContext: mustCompile(contextSchema, "context.schema.json"),
	}}
}

func mustCompile(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// failure is one schema violation at a JSON pointer location.
type failure struct {
	location []string
	message  string
}

func (f failure) String() string {
	return "/" + strings.Join(f.location, "/") + ": " + f.message
}

// Validate checks a raw JSON document and returns one message per failure.
func (v *Validator) Validate(kind Kind, data []byte) []string {
	fails := v.check(kind, data)
	if len(fails) == 0 {
		return nil
	}
	errs := make([]string, 0, len(fails))
	for _, f := range fails {
		errs = append(errs, f.String())
	}
	return errs
}

// ContextLists decodes the named list fields of a context response. Each field is
// judged on its own: one that is absent, null or fails the schema comes back nil, so
// a malformed sibling field does not cost the caller the list it asked for. errMsg
// is the response's error field, if any; failures lists every violation found.
func (v *Validator) ContextLists(data []byte, fields ...string) (lists map[string][]string, errMsg string, failures []string) {
	fails := v.check(KindContext, data)
	bad := make(map[string]bool)
	root := false
	for _, f := range fails {
		failures = append(failures, f.String())
		if len(f.location) == 0 {
			root = true
			continue
		}
		bad[f.location[0]] = true
	}

	lists = make(map[string][]string, len(fields))
	var doc map[string]json.RawMessage
	if root || json.Unmarshal(data, &doc) != nil {
		return lists, "", failures
	}
	for _, name := range fields {
		raw, ok := doc[name]
		if !ok || bad[name] {
			continue
		}
		var l []string
		if err := json.Unmarshal(raw, &l); err == nil && l != nil {
			lists[name] = l
		}
	}
	if raw, ok := doc["error"]; ok && !bad["error"] {
		_ = json.Unmarshal(raw, &errMsg)
	}
	return lists, errMsg, failures
}

func (v *Validator) check(kind Kind, data []byte) []failure {
	sch, ok := v.schemas[kind]
	if !ok {
		return []failure{{message: fmt.Sprintf("unknown schema %q", kind)}}
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []failure{{message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []failure{{message: fmt.Sprintf("schema: %v", err)}}
	}
	var fails []failure
	collect(ve, &fails)
	return fails
}

func collect(ve *jsonschema.ValidationError, fails *[]failure) {
	if len(ve.Causes) == 0 {
		*fails = append(*fails, failure{
			location: ve.InstanceLocation,
			message:  ve.ErrorKind.LocalizedString(defaultPrinter),
		})
		return
	}
	for _, c := range ve.Causes {
		collect(c, fails)
	}
}

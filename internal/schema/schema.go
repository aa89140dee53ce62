// Package schema validates incoming API payloads against JSON Schemas.
// Validation happens only at the API ingress; past this point content blobs
// are opaque to the store.
package schema

import (
	"bytes"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"inkdraft/pkg/apperr"
)

const (
	CreateDocument = "create_document.json"
	SaveDocument   = "save_document.json"
	Suggest        = "suggest.json"
)

var sources = map[string]string{
	CreateDocument: `{
		"type": "object",
		"properties": {
			"title":   {"type": "string", "minLength": 1, "maxLength": 512},
			"content": {"type": "object"},
			"mirror":  {"type": "boolean"}
		},
		"required": ["content"],
		"additionalProperties": false
	}`,
	SaveDocument: `{
		"type": "object",
		"properties": {
			"document_id": {"type": "integer", "minimum": 1},
			"title":       {"type": "string", "minLength": 1, "maxLength": 512},
			"content":     {"type": "object"}
		},
		"required": ["document_id", "title", "content"],
		"additionalProperties": false
	}`,
	Suggest: `{
		"type": "object",
		"properties": {
			"document_id": {"type": "integer", "minimum": 1},
			"kind":        {"type": "string", "enum": ["completion", "summary"]}
		},
		"required": ["document_id", "kind"],
		"additionalProperties": false
	}`,
}

var compiled = map[string]*jsonschema.Schema{}

func init() {
	compiler := jsonschema.NewCompiler()
	for name, src := range sources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			panic("schema: bad source for " + name + ": " + err.Error())
		}
		if err := compiler.AddResource(name, doc); err != nil {
			panic("schema: add " + name + ": " + err.Error())
		}
	}
	for name := range sources {
		sch, err := compiler.Compile(name)
		if err != nil {
			panic("schema: compile " + name + ": " + err.Error())
		}
		compiled[name] = sch
	}
}

// Validate checks body against the named schema. Any mismatch, including
// bodies that are not JSON at all, comes back as a validation error.
func Validate(name string, body []byte) error {
	sch, ok := compiled[name]
	if !ok {
		return apperr.Newf(apperr.Validation, "unknown schema %q", name)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.Validation, "request body is not valid JSON", err)
	}
	if err := sch.Validate(inst); err != nil {
		return apperr.Wrap(apperr.Validation, "request body failed validation", err)
	}
	return nil
}

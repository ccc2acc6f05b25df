package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://heightmap.ai/schemas/"

// Schema names, one per message type.
const (
	SchemaGenerate = "generate"
	SchemaRound    = "round"
	SchemaResult   = "result"
	SchemaError    = "error"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := []string{SchemaGenerate, SchemaRound, SchemaResult, SchemaError}
	for _, name := range names {
		b, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(schemaBaseURL+name+".schema.json", bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := c.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		out[name] = s
	}
	schemas = out
}

// Schema returns the compiled schema for a message type.
func Schema(name string) (*jsonschema.Schema, error) {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

// Validate checks raw JSON against the named schema.
func Validate(name string, raw []byte) error {
	s, err := Schema(name)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &RequestError{Code: ErrProtoBadRequest, Err: fmt.Errorf("decode json: %w", err)}
	}
	if err := s.Validate(v); err != nil {
		return &RequestError{Code: ErrProtoBadRequest, Err: err}
	}
	return nil
}

// DecodeGenerate validates and decodes a GENERATE request.
func DecodeGenerate(raw []byte) (GenerateMsg, error) {
	var m GenerateMsg
	if err := Validate(SchemaGenerate, raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, &RequestError{Code: ErrProtoBadRequest, Err: err}
	}
	if m.ProtocolVersion != Version {
		return m, &RequestError{Code: ErrProtoBadRequest, Err: fmt.Errorf("unsupported protocol_version %q", m.ProtocolVersion)}
	}
	return m, nil
}

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stavrosk/sttcoord/internal/engine"
)

// EngineDefinition describes how to run one engine mode.
type EngineDefinition struct {
	// Command is the engine executable.
	Command string `json:"command"`
	// Args are passed to the engine ahead of mode-derived flags.
	Args []string `json:"args,omitempty"`
	// Settings are opaque key/value pairs forwarded to the engine.
	Settings map[string]string `json:"settings,omitempty"`
}

// EnginesFile is the parsed engines definition file.
type EnginesFile struct {
	Engines map[string]EngineDefinition `json:"engines"`
}

const enginesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "sttcoord engines definition",
  "type": "object",
  "required": ["engines"],
  "additionalProperties": false,
  "properties": {
    "engines": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": false,
      "propertyNames": {"enum": ["realtime", "longform", "static"]},
      "patternProperties": {
        "^(realtime|longform|static)$": {
          "type": "object",
          "required": ["command"],
          "additionalProperties": false,
          "properties": {
            "command": {"type": "string", "minLength": 1},
            "args": {"type": "array", "items": {"type": "string"}},
            "settings": {
              "type": "object",
              "additionalProperties": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

// LoadEngines reads, schema-validates, and strictly decodes the engines
// definition file. Keys are returned as validated mode ids.
func LoadEngines(path string) (map[engine.ModeID]EngineDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engines file: %w", err)
	}

	schema, err := compileEnginesSchema()
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse engines file %s: %w", path, err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("engines file %s: %w", path, err)
	}

	var file EnginesFile
	if err := strictUnmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode engines file %s: %w", path, err)
	}

	defs := make(map[engine.ModeID]EngineDefinition, len(file.Engines))
	for key, def := range file.Engines {
		mode := engine.ModeID(key)
		if err := mode.Validate(); err != nil {
			return nil, fmt.Errorf("engines file %s: %w", path, err)
		}
		defs[mode] = def
	}
	return defs, nil
}

func compileEnginesSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("engines.schema.json", strings.NewReader(enginesSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("engines.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func strictUnmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}

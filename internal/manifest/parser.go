package manifest

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://stacklok.com/schemas/manifest-sync/manifest.schema.json"

var (
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
	compileSchemaOnce sync.Once
)

// ErrMissingRepositories is wrapped by a ShapeError when spec.repositories is absent.
var ErrMissingRepositories = errors.New("spec.repositories is required")

func manifestSchema() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compiledSchemaErr = fmt.Errorf("failed to decode manifest schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compiledSchemaErr = fmt.Errorf("failed to add manifest schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, compiledSchemaErr
}

// Parse decodes raw manifest bytes (YAML or JSON) and validates their shape.
// Undecodable content yields a *FetchError; content that decodes but lacks
// the required structure yields a *ShapeError.
func Parse(data []byte, sourceURL string) (*FetchResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ShapeError{URL: sourceURL, Reason: "manifest is empty", Err: ErrMissingRepositories}
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Err: fmt.Errorf("malformed manifest content: %w", err)}
	}

	if err := validateShape(jsonData, sourceURL); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, &ShapeError{URL: sourceURL, Reason: "failed to decode repositories", Err: err}
	}

	sum := sha256.Sum256(data)
	return &FetchResult{
		Descriptors: m.Spec.Repositories,
		SourceURL:   sourceURL,
		Hash:        hex.EncodeToString(sum[:]),
	}, nil
}

// validateShape checks the presence of spec.repositories explicitly, so the most
// common failure gets a stable error, then validates the full document against
// the embedded JSON schema.
func validateShape(jsonData []byte, sourceURL string) error {
	var probe struct {
		Spec *struct {
			Repositories *json.RawMessage `json:"repositories"`
		} `json:"spec"`
	}
	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return &ShapeError{URL: sourceURL, Reason: "manifest is not an object", Err: err}
	}
	if probe.Spec == nil || probe.Spec.Repositories == nil || string(*probe.Spec.Repositories) == "null" {
		return &ShapeError{URL: sourceURL, Reason: "missing spec.repositories", Err: ErrMissingRepositories}
	}

	schema, err := manifestSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return &ShapeError{URL: sourceURL, Reason: "manifest is not valid JSON", Err: err}
	}
	if err := schema.Validate(inst); err != nil {
		return &ShapeError{URL: sourceURL, Reason: "schema validation failed", Err: err}
	}
	return nil
}

package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResource = "descriptor.schema.json"

// descriptorDocument mirrors the fields of package.json that must be
// present. Everything else, portlet included, is checked after validation.
type descriptorDocument struct {
	Name    string `json:"name" jsonschema:"minLength=1,description=npm package name"`
	Version string `json:"version" jsonschema:"minLength=1,description=npm package version"`
}

var (
	schemaOnce     sync.Once
	schemaJSON     []byte
	compiledSchema *validator.Schema
	errSchema      error
)

// Schema returns the JSON schema descriptors are validated against.
func Schema() ([]byte, error) {
	schemaOnce.Do(loadSchema)
	return schemaJSON, errSchema
}

func descriptorSchema() (*validator.Schema, error) {
	schemaOnce.Do(loadSchema)
	return compiledSchema, errSchema
}

func loadSchema() {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	s := reflector.Reflect(&descriptorDocument{})

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		errSchema = fmt.Errorf("failed to marshal descriptor schema: %w", err)
		return
	}
	schemaJSON = b

	compiler := validator.NewCompiler()
	if err := compiler.AddResource(schemaResource, strings.NewReader(string(b))); err != nil {
		errSchema = fmt.Errorf("failed to add descriptor schema resource: %w", err)
		return
	}
	compiledSchema, err = compiler.Compile(schemaResource)
	if err != nil {
		errSchema = fmt.Errorf("invalid descriptor schema: %w", err)
	}
}

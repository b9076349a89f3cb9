package fixture

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// SchemaError reports fixture content that does not satisfy the schema.
type SchemaError struct {
	Details string
}

func (e *SchemaError) Error() string {
	return "fixture does not match schema:\n" + e.Details
}

// ValidateSchema checks raw fixture YAML against the embedded #Fixture
// definition.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("fixture.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile fixture schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Fixture"))
	val := ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return &SchemaError{Details: formatCUEError(err)}
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: formatCUEError(err)}
	}
	return nil
}

func formatCUEError(err error) string {
	return strings.TrimSpace(cueerrors.Details(err, nil))
}

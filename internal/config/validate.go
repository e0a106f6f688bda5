package config

import (
	"bytes"
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schema []byte

// validate checks raw YAML against the embedded CUE schema. Unknown keys and
// out-of-range values are rejected here, before decoding.
func validate(path string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	ctx := cuecontext.New()

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	def := ctx.CompileBytes(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("invalid config schema: %w", err)
	}

	// Merge values with schema
	final := def.Unify(value)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return nil
}

package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ReadFile decodes a flat option → value mapping from path. The format is
// chosen by extension: .yaml/.yml, .toml or .cue.
func ReadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Decode(filepath.Ext(path), data)
}

// Decode parses data in the format named by ext (with or without the dot).
func Decode(ext string, data []byte) (map[string]any, error) {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "yaml", "yml":
		return decodeYAML(data)
	case "toml":
		return decodeTOML(data)
	case "cue":
		return decodeCUE(data)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
}

// LoadFile reads path and applies it to st.
func LoadFile(st *Store, path string) error {
	values, err := ReadFile(path)
	if err != nil {
		return err
	}
	if err := st.Apply(values); err != nil {
		return fmt.Errorf("applying %s: %w", path, err)
	}
	return nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshaling yaml config: %w", err)
	}
	return values, nil
}

func decodeTOML(data []byte) (map[string]any, error) {
	values := make(map[string]any)
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshaling toml config: %w", err)
	}
	return values, nil
}

func decodeCUE(data []byte) (map[string]any, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling cue config: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("cue config must be concrete: %w", err)
	}

	iter, err := value.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating cue config: %w", err)
	}

	values := make(map[string]any)
	for iter.Next() {
		v, err := cueScalar(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("cue field %s: %w", iter.Label(), err)
		}
		values[iter.Label()] = v
	}
	return values, nil
}

func cueScalar(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.BoolKind:
		return v.Bool()
	case cue.StringKind:
		return v.String()
	default:
		return nil, fmt.Errorf("unsupported value kind %s", v.Kind())
	}
}

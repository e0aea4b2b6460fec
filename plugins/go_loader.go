package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"
)

// Interpreted plugin files declare their protocols through this function:
//
//	func ProtocolDefinitions() ([]map[string]any, error)
const goDefinitionFuncName = "ProtocolDefinitions"

// LoadGoDefinitionDir interprets every .go file in dir and collects the
// protocol definitions it declares. A missing directory means "no plugins".
func LoadGoDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		fileDefs, err := interpretDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// interpretDefinitionFile evaluates one plugin source file and converts each
// returned map into a validated definition. Maps round-trip through YAML so
// interpreted plugins and on-disk YAML plugins share one schema.
func interpretDefinitionFile(path string) ([]DefinitionFile, error) {
	i := interp.New(interp.Options{})
	i.Use(stdlib.Symbols)
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fn, err := i.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() ([]map[string]any, error): %w", path, goDefinitionFuncName, err)
	}
	raw, err := callDefinitionFunc(fn)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	files := make([]DefinitionFile, 0, len(raw))
	for idx, entry := range raw {
		payload, err := yaml.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s definition[%d]: %w", path, idx, err)
		}
		def, err := ParseDefinitionYAML(payload)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s definition[%d]: %w", path, idx, err)
		}
		files = append(files, DefinitionFile{Definition: def, Path: fmt.Sprintf("%s#%d", path, idx+1)})
	}
	return files, nil
}

// callDefinitionFunc invokes the interpreted function. The error return is
// optional; yaegi hands the function back as a reflect.Value, so the result
// shapes are checked at call time.
func callDefinitionFunc(fn reflect.Value) ([]map[string]any, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	if t := fn.Type(); t.NumIn() != 0 || t.NumOut() < 1 || t.NumOut() > 2 {
		return nil, fmt.Errorf("%s must be niladic and return ([]map[string]any[, error])", goDefinitionFuncName)
	}
	results := fn.Call(nil)
	if len(results) == 2 && !results[1].IsNil() {
		callErr, ok := results[1].Interface().(error)
		if !ok {
			return nil, fmt.Errorf("%s second return value must be an error", goDefinitionFuncName)
		}
		return nil, callErr
	}
	return definitionMaps(results[0])
}

func definitionMaps(value reflect.Value) ([]map[string]any, error) {
	if defs, ok := value.Interface().([]map[string]any); ok {
		return defs, nil
	}
	if value.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return []map[string]any, got %s", goDefinitionFuncName, value.Type())
	}
	defs := make([]map[string]any, value.Len())
	for i := 0; i < value.Len(); i++ {
		m, ok := value.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s result %d is not map[string]any", goDefinitionFuncName, i)
		}
		defs[i] = m
	}
	return defs, nil
}

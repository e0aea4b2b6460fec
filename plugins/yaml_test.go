package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const yamlPluginSource = `id: plugin-gcmc
type: gcmc
invoke_every: 5
steps_per_invoke: 3
settings:
  temperature: 1200
  chemical_potentials:
    O: -1.5
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(yamlPluginSource))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ID != "plugin-gcmc" || def.Type != "gcmc" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.InvokeEvery != 5 || def.StepsPerInvoke != 3 {
		t.Fatalf("unexpected scheduling: %+v", def)
	}
}

func TestParseDefinitionYAMLRejectsMissingID(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("type: gcmc\n")); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestParseDefinitionYAMLRejectsEmptyPayload(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("   \n")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gcmc.yaml"), []byte(yamlPluginSource), 0644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Definition.ID != "plugin-gcmc" {
		t.Fatalf("unexpected id: %+v", defs[0].Definition)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should be tolerated: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil definitions, got %+v", defs)
	}
}

func TestLoadDirCombinesYAMLAndGo(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gcmc.yaml"), []byte(yamlPluginSource), 0644); err != nil {
		t.Fatalf("write yaml plugin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "swap.go"), []byte(goPluginSource), 0644); err != nil {
		t.Fatalf("write go plugin: %v", err)
	}
	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	ids := map[string]bool{}
	for _, def := range defs {
		ids[def.Definition.ID] = true
	}
	if !ids["plugin-gcmc"] || !ids["plugin-swap"] {
		t.Fatalf("unexpected ids: %+v", ids)
	}
}

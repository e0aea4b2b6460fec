// Package plugins loads user-provided protocol definitions from a run's
// plugins directory. Definitions come either as YAML files or as Go files
// interpreted at startup, and always resolve to protocol types already
// present in the registry.
package plugins

import (
	"fmt"
	"strings"

	"github.com/abmazitov/heox/internal/protocol"
)

// ProtocolDefinition describes a plugin-declared protocol instance.
//
// The struct mirrors the on-disk schema under <run>/plugins/*.yaml and is
// intentionally narrow so definitions can be validated before they are wired
// into the pipeline.
type ProtocolDefinition struct {
	ID             string         `json:"id" yaml:"id"`
	Type           string         `json:"type" yaml:"type"`
	InvokeEvery    int            `json:"invoke_every,omitempty" yaml:"invoke_every,omitempty"`
	StepsPerInvoke int            `json:"steps_per_invoke,omitempty" yaml:"steps_per_invoke,omitempty"`
	Settings       map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Normalized returns a trimmed copy of the definition.
func (def ProtocolDefinition) Normalized() ProtocolDefinition {
	clone := ProtocolDefinition{
		ID:             strings.TrimSpace(def.ID),
		Type:           strings.TrimSpace(def.Type),
		InvokeEvery:    def.InvokeEvery,
		StepsPerInvoke: def.StepsPerInvoke,
	}
	if len(def.Settings) > 0 {
		clone.Settings = make(map[string]any, len(def.Settings))
		for key, value := range def.Settings {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Settings[trimmed] = value
		}
	}
	return clone
}

// Validate ensures the definition is well-formed.
func (def ProtocolDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if normalized.Type == "" {
		return fmt.Errorf("plugin %s: type is required", normalized.ID)
	}
	if normalized.InvokeEvery < 0 {
		return fmt.Errorf("plugin %s: invoke_every cannot be negative", normalized.ID)
	}
	if normalized.StepsPerInvoke < 0 {
		return fmt.Errorf("plugin %s: steps_per_invoke cannot be negative", normalized.ID)
	}
	return nil
}

// Info converts the definition into protocol identity.
func (def ProtocolDefinition) Info() protocol.Info {
	return protocol.Info{
		ID:             def.ID,
		Type:           def.Type,
		InvokeEvery:    def.InvokeEvery,
		StepsPerInvoke: def.StepsPerInvoke,
	}
}

// Resolve builds every definition against the registry, in order.
func Resolve(defs []DefinitionFile, reg *protocol.Registry, env protocol.Env) ([]protocol.Protocol, error) {
	protocols := make([]protocol.Protocol, 0, len(defs))
	for _, file := range defs {
		def := file.Definition
		p, err := reg.Resolve(def.Info(), protocol.Settings(def.Settings), env)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", file.Path, err)
		}
		protocols = append(protocols, p)
	}
	return protocols, nil
}

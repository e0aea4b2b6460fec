// Package report writes run reports: a Markdown summary with a YAML
// frontmatter block so downstream tooling can index finished runs without
// parsing prose.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("report: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("report: malformed frontmatter")
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Summary captures one finished (or interrupted) run.
type Summary struct {
	RunID       string
	Description string
	Steps       int
	StepsDone   int
	FinalEnergy *float64
	Seed        int64
	StartedAt   time.Time
	FinishedAt  time.Time
	// Statistics holds the per-protocol log options at the end of the run.
	Statistics map[string]float64
	// Interrupted marks runs stopped by cancellation.
	Interrupted bool
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

type envelope struct {
	Heox meta `yaml:"heox"`
}

type meta struct {
	Run         string             `yaml:"run"`
	Description string             `yaml:"description,omitempty"`
	Steps       int                `yaml:"steps"`
	StepsDone   int                `yaml:"steps_done"`
	FinalEnergy *float64           `yaml:"final_energy,omitempty"`
	Seed        int64              `yaml:"seed,omitempty"`
	Started     string             `yaml:"started"`
	Finished    string             `yaml:"finished"`
	Statistics  map[string]float64 `yaml:"statistics,omitempty"`
	Interrupted bool               `yaml:"interrupted,omitempty"`
}

// Encode renders the summary as frontmatter plus a readable body.
func Encode(s Summary) ([]byte, error) {
	if s.RunID == "" {
		return nil, fmt.Errorf("report: run id is required")
	}
	env := envelope{meta{
		Run:         s.RunID,
		Description: s.Description,
		Steps:       s.Steps,
		StepsDone:   s.StepsDone,
		FinalEnergy: s.FinalEnergy,
		Seed:        s.Seed,
		Started:     s.StartedAt.UTC().Format(timeLayout),
		Finished:    s.FinishedAt.UTC().Format(timeLayout),
		Statistics:  s.Statistics,
		Interrupted: s.Interrupted,
	}}
	data, err := yaml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("report: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.WriteString(body(s))
	return buf.Bytes(), nil
}

func body(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", s.RunID)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Description)
	}
	status := "completed"
	if s.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(&b, "- Status: %s (%d of %d steps)\n", status, s.StepsDone, s.Steps)
	if s.FinalEnergy != nil {
		fmt.Fprintf(&b, "- Final potential energy: %.6f eV\n", *s.FinalEnergy)
	}
	fmt.Fprintf(&b, "- Wall time: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if len(s.Statistics) > 0 {
		b.WriteString("\n## Protocol statistics\n\n")
		names := make([]string, 0, len(s.Statistics))
		for name := range s.Statistics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %g\n", name, s.Statistics[name])
		}
	}
	return b.String()
}

// Parse extracts the summary from an encoded report.
func Parse(content []byte) (Summary, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Summary{}, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Summary{}, ErrMalformedFrontMatter
	}
	var env envelope
	if err := yaml.Unmarshal(parts[0], &env); err != nil {
		return Summary{}, fmt.Errorf("report: parse frontmatter: %w", err)
	}
	if env.Heox.Run == "" {
		return Summary{}, ErrMalformedFrontMatter
	}
	started, err := time.Parse(timeLayout, env.Heox.Started)
	if err != nil {
		return Summary{}, fmt.Errorf("report: parse started timestamp: %w", err)
	}
	finished, err := time.Parse(timeLayout, env.Heox.Finished)
	if err != nil {
		return Summary{}, fmt.Errorf("report: parse finished timestamp: %w", err)
	}
	return Summary{
		RunID:       env.Heox.Run,
		Description: env.Heox.Description,
		Steps:       env.Heox.Steps,
		StepsDone:   env.Heox.StepsDone,
		FinalEnergy: env.Heox.FinalEnergy,
		Seed:        env.Heox.Seed,
		StartedAt:   started.UTC(),
		FinishedAt:  finished.UTC(),
		Statistics:  env.Heox.Statistics,
		Interrupted: env.Heox.Interrupted,
	}, nil
}

// Store writes reports into a directory, one file per run.
type Store struct {
	dir string
	now func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for file naming.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore builds a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	store := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Write persists the summary and returns the report path.
func (s *Store) Write(summary Summary) (string, error) {
	data, err := Encode(summary)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", s.dir, err)
	}
	name := fmt.Sprintf("%s-%s.md", s.now().UTC().Format("20060102-150405"), shortID(summary.RunID))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

// Load reads a report back.
func (s *Store) Load(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("report: read %s: %w", path, err)
	}
	return Parse(data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

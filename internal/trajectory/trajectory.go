// Package trajectory reads and writes simulation trajectories as extended
// XYZ: a frame is an atom count line, a comment line carrying key=value
// pairs (step, energy, temperature, Lattice), and one "symbol x y z" line
// per site.
package trajectory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/state"
)

// Writer appends frames to a trajectory file.
type Writer struct {
	path string
	file *os.File
	w    *bufio.Writer
}

// NewWriter truncates path and prepares it for frame appends. A fresh run
// always starts from an empty trajectory, matching the pipeline contract.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trajectory: create %s: %w", path, err)
	}
	return &Writer{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one frame.
func (t *Writer) Append(frame state.Frame) error {
	s := frame.Structure
	if err := s.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(t.w, s.Len())

	comment := []string{fmt.Sprintf("step=%d", frame.Step)}
	if frame.Energy != nil {
		comment = append(comment, fmt.Sprintf("energy=%.8f", *frame.Energy))
	}
	if frame.Temperature != 0 {
		comment = append(comment, fmt.Sprintf("temperature=%.3f", frame.Temperature))
	}
	comment = append(comment, fmt.Sprintf(
		"Lattice=\"%g %g %g %g %g %g %g %g %g\"",
		s.Cell[0][0], s.Cell[0][1], s.Cell[0][2],
		s.Cell[1][0], s.Cell[1][1], s.Cell[1][2],
		s.Cell[2][0], s.Cell[2][1], s.Cell[2][2]))
	fmt.Fprintln(t.w, strings.Join(comment, " "))

	for i := 0; i < s.Len(); i++ {
		p := s.Positions[i]
		fmt.Fprintf(t.w, "%-3s %16.8f %16.8f %16.8f\n", s.Symbols[i], p[0], p[1], p[2])
	}
	return t.w.Flush()
}

// Close flushes and closes the underlying file.
func (t *Writer) Close() error {
	if err := t.w.Flush(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// Path returns the file backing this writer.
func (t *Writer) Path() string {
	return t.path
}

// ReadFile loads every frame in a trajectory file.
func ReadFile(path string) ([]state.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trajectory: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes frames until EOF.
func Read(r io.Reader) ([]state.Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var frames []state.Frame
	for {
		frame, ok, err := readFrame(scanner)
		if err != nil {
			return nil, fmt.Errorf("trajectory: frame %d: %w", len(frames)+1, err)
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, frame)
	}
}

func readFrame(scanner *bufio.Scanner) (state.Frame, bool, error) {
	line, ok := nextLine(scanner)
	if !ok {
		return state.Frame{}, false, scanner.Err()
	}
	count, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return state.Frame{}, false, fmt.Errorf("bad atom count %q", line)
	}
	if count <= 0 {
		return state.Frame{}, false, fmt.Errorf("non-positive atom count %d", count)
	}

	comment, ok := nextLine(scanner)
	if !ok {
		return state.Frame{}, false, fmt.Errorf("missing comment line")
	}
	frame := state.Frame{Structure: &lattice.Structure{
		Positions: make([][3]float64, 0, count),
		Symbols:   make([]string, 0, count),
		PBC:       [3]bool{true, true, true},
	}}
	if err := parseComment(comment, &frame); err != nil {
		return state.Frame{}, false, err
	}

	for i := 0; i < count; i++ {
		line, ok := nextLine(scanner)
		if !ok {
			return state.Frame{}, false, fmt.Errorf("truncated frame: %d of %d atom lines", i, count)
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return state.Frame{}, false, fmt.Errorf("bad atom line %q", line)
		}
		var p [3]float64
		for c := 0; c < 3; c++ {
			p[c], err = strconv.ParseFloat(fields[c+1], 64)
			if err != nil {
				return state.Frame{}, false, fmt.Errorf("bad coordinate in %q: %w", line, err)
			}
		}
		frame.Structure.Symbols = append(frame.Structure.Symbols, fields[0])
		frame.Structure.Positions = append(frame.Structure.Positions, p)
	}
	return frame, true, nil
}

// nextLine skips blank lines between frames.
func nextLine(scanner *bufio.Scanner) (string, bool) {
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			return line, true
		}
	}
	return "", false
}

// parseComment extracts the key=value pairs a writer emits. Unknown keys and
// missing keys are fine: foreign XYZ files stay loadable.
func parseComment(comment string, frame *state.Frame) error {
	rest := comment
	for rest != "" {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		eq := strings.Index(rest, "=")
		if eq < 0 {
			break
		}
		key := rest[:eq]
		rest = rest[eq+1:]
		var value string
		if strings.HasPrefix(rest, "\"") {
			end := strings.Index(rest[1:], "\"")
			if end < 0 {
				return fmt.Errorf("unterminated quote in comment %q", comment)
			}
			value = rest[1 : 1+end]
			rest = rest[end+2:]
		} else {
			cut := strings.IndexAny(rest, " \t")
			if cut < 0 {
				value, rest = rest, ""
			} else {
				value, rest = rest[:cut], rest[cut:]
			}
		}
		switch key {
		case "step":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("bad step %q", value)
			}
			frame.Step = n
		case "energy":
			e, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("bad energy %q", value)
			}
			frame.Energy = &e
		case "temperature":
			tK, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("bad temperature %q", value)
			}
			frame.Temperature = tK
		case "Lattice":
			fields := strings.Fields(value)
			if len(fields) != 9 {
				return fmt.Errorf("lattice needs 9 components, got %d", len(fields))
			}
			for k, field := range fields {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return fmt.Errorf("bad lattice component %q", field)
				}
				frame.Structure.Cell[k/3][k%3] = v
			}
		}
	}
	return nil
}

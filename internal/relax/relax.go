// Package relax minimizes structure energies by steepest descent until the
// largest force component falls below a convergence threshold.
package relax

import (
	"fmt"
	"math"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/potential"
)

const (
	// DefaultFmax is the convergence threshold in eV/Angstrom.
	DefaultFmax = 0.05
	// DefaultMaxSteps caps an optimization run.
	DefaultMaxSteps = 500

	defaultStepSize = 0.05 // Angstrom^2/eV
	maxMove         = 0.2  // Angstrom, per component per step
)

// Options tune the optimizer. Zero values select the defaults.
type Options struct {
	Fmax     float64
	MaxSteps int
	StepSize float64
}

func (o Options) withDefaults() Options {
	if o.Fmax <= 0 {
		o.Fmax = DefaultFmax
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.StepSize <= 0 {
		o.StepSize = defaultStepSize
	}
	return o
}

// Result reports a finished optimization.
type Result struct {
	Energy    float64
	Fmax      float64
	Steps     int
	Converged bool
}

// Minimize relaxes the structure in place. The calculator must provide
// forces. A run that exhausts MaxSteps still returns the best-effort energy
// with Converged false.
func Minimize(s *lattice.Structure, calc potential.Calculator, opts Options) (Result, error) {
	provider, ok := calc.(potential.ForceProvider)
	if !ok {
		return Result{}, fmt.Errorf("relax: calculator %s does not provide forces", calc.Name())
	}
	opts = opts.withDefaults()

	var res Result
	for step := 0; step <= opts.MaxSteps; step++ {
		forces, err := provider.Forces(s)
		if err != nil {
			return Result{}, err
		}
		res.Fmax = maxComponent(forces)
		res.Steps = step
		if res.Fmax < opts.Fmax {
			res.Converged = true
			break
		}
		if step == opts.MaxSteps {
			break
		}
		for i := range forces {
			if !s.Occupied(i) {
				continue
			}
			for c := 0; c < 3; c++ {
				move := opts.StepSize * forces[i][c]
				if move > maxMove {
					move = maxMove
				} else if move < -maxMove {
					move = -maxMove
				}
				s.Positions[i][c] += move
			}
		}
	}

	energy, err := calc.Energy(s)
	if err != nil {
		return Result{}, err
	}
	res.Energy = energy
	return res, nil
}

func maxComponent(forces [][3]float64) float64 {
	max := 0.0
	for _, f := range forces {
		for c := 0; c < 3; c++ {
			if v := math.Abs(f[c]); v > max {
				max = v
			}
		}
	}
	return max
}

package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/abmazitov/heox/internal/config"
	"github.com/abmazitov/heox/internal/report"
)

// ReplicaResult holds the outcome of one replica of a replicated run.
type ReplicaResult struct {
	Index   int
	Seed    int64
	Summary report.Summary
	Err     error
}

// ReplicaOptions tunes RunReplicas.
type ReplicaOptions struct {
	// Count is the number of replicas to run. Must be positive.
	Count int
	// MaxParallel caps concurrently running replicas. Zero or negative
	// means Count.
	MaxParallel int
	// Temperatures optionally assigns one temperature per replica, a
	// ladder overriding each protocol's "temperature" setting. Length
	// must equal Count when set.
	Temperatures []float64
}

// RunReplicas runs Count copies of the configured simulation, each in its
// own subdirectory of the run directory with a deterministic seed offset.
// Results come back ordered by replica index regardless of completion
// order. A failing replica does not stop the others.
func RunReplicas(ctx context.Context, cfg *config.Config, opts ReplicaOptions) ([]ReplicaResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("runner: configuration is required")
	}
	if opts.Count <= 0 {
		return nil, fmt.Errorf("runner: replica count must be positive, got %d", opts.Count)
	}
	if len(opts.Temperatures) > 0 && len(opts.Temperatures) != opts.Count {
		return nil, fmt.Errorf("runner: temperature ladder has %d rungs for %d replicas", len(opts.Temperatures), opts.Count)
	}
	parallel := opts.MaxParallel
	if parallel <= 0 || parallel > opts.Count {
		parallel = opts.Count
	}

	baseSeed := cfg.SeedOrNow()
	results := make([]ReplicaResult, opts.Count)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				var temperature *float64
				if len(opts.Temperatures) > 0 {
					temperature = &opts.Temperatures[idx]
				}
				results[idx] = runReplica(ctx, cfg, idx, baseSeed+int64(idx), temperature)
			}
		}()
	}
	for idx := 0; idx < opts.Count; idx++ {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return results, nil
}

func runReplica(ctx context.Context, base *config.Config, idx int, seed int64, temperature *float64) ReplicaResult {
	result := ReplicaResult{Index: idx, Seed: seed}
	if ctx.Err() != nil {
		result.Err = ctx.Err()
		return result
	}
	cfg := replicaConfig(base, idx, temperature)
	run, err := Setup(cfg, WithSeed(seed))
	if err != nil {
		result.Err = fmt.Errorf("replica %d: %w", idx+1, err)
		return result
	}
	summary, err := run.Execute(ctx)
	result.Summary = summary
	if err != nil {
		result.Err = fmt.Errorf("replica %d: %w", idx+1, err)
	}
	return result
}

// replicaConfig clones the base configuration into a per-replica run
// directory, rewriting protocol temperatures when a ladder is in use. The
// clone shares the base's other maps; replicas only ever read them.
func replicaConfig(base *config.Config, idx int, temperature *float64) *config.Config {
	clone := *base
	dir := base.Run.Dir
	if dir == "" {
		dir = config.DefaultRunDir
	}
	clone.Run.Dir = filepath.Join(dir, fmt.Sprintf("replica-%02d", idx+1))
	clone.Run.Seed = 0
	if temperature != nil {
		protocols := make([]config.ProtocolConfig, len(base.Protocols))
		copy(protocols, base.Protocols)
		for i, pc := range protocols {
			if _, ok := pc.Settings["temperature"]; !ok {
				continue
			}
			settings := make(map[string]any, len(pc.Settings))
			for key, value := range pc.Settings {
				settings[key] = value
			}
			settings["temperature"] = *temperature
			protocols[i].Settings = settings
		}
		clone.Protocols = protocols
	}
	return &clone
}

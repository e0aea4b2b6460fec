// Command heox-run executes a simulation headlessly from a configuration
// file and writes its report into the run directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/abmazitov/heox/internal/config"
	"github.com/abmazitov/heox/internal/monitor"
	"github.com/abmazitov/heox/internal/runner"
)

func main() {
	replicas := flag.Int("replicas", 1, "number of independent replicas to run")
	parallel := flag.Int("parallel", 0, "max replicas running at once (0 means all)")
	ladder := flag.String("temperatures", "", "comma-separated temperature ladder, one value per replica")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: heox-run [flags] <config.yaml>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	temperatures, err := parseLadder(*ladder)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(ctx, flag.Arg(0), *replicas, *parallel, temperatures); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Fatal("Interrupted")
		}
		log.Fatal(err)
	}
	log.Println("Done")
}

func parseLadder(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	temperatures := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid temperature %q", part)
		}
		temperatures = append(temperatures, value)
	}
	return temperatures, nil
}

func run(ctx context.Context, configPath string, replicas, parallel int, temperatures []float64) error {
	log.Printf("Reading configuration file `%s`\n", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if replicas > 1 || len(temperatures) > 0 {
		if len(temperatures) > 0 && replicas == 1 {
			replicas = len(temperatures)
		}
		log.Printf("Running %d replicas\n", replicas)
		results, err := runner.RunReplicas(ctx, cfg, runner.ReplicaOptions{Count: replicas, MaxParallel: parallel, Temperatures: temperatures})
		if err != nil {
			return err
		}
		failed := 0
		for _, result := range results {
			if result.Err != nil {
				failed++
				log.Printf("replica %d: %v\n", result.Index+1, result.Err)
				continue
			}
			log.Printf("replica %d: %d steps, seed %d\n", result.Index+1, result.Summary.StepsDone, result.Seed)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d replicas failed", failed, len(results))
		}
		return nil
	}

	opts := []runner.Option{}
	var mon *monitor.Server
	if cfg.Monitor.Addr != "" {
		mon = monitor.New(cfg.Monitor.Addr)
		opts = append(opts, runner.WithProgress(mon.Track))
	}

	log.Printf("Preparing run directory `%s`\n", cfg.Run.Dir)
	sim, err := runner.Setup(cfg, opts...)
	if err != nil {
		return err
	}
	if mon != nil {
		mon.SetRun(sim.ID, cfg.Run.Steps)
		mon.SetLogbook(sim.Log)
		if err := mon.Start(ctx); err != nil {
			return err
		}
		defer mon.Shutdown(context.Background())
		log.Printf("Monitor listening on %s\n", mon.Addr())
	}

	log.Printf("Running %d steps (seed %d)\n", cfg.Run.Steps, sim.Seed)
	summary, err := sim.Execute(ctx)
	if err != nil && !summary.Interrupted {
		return err
	}
	if summary.Interrupted {
		log.Printf("Stopped after %d of %d steps\n", summary.StepsDone, summary.Steps)
		return ctx.Err()
	}
	if summary.FinalEnergy != nil {
		log.Printf("Final energy: %.6f eV\n", *summary.FinalEnergy)
	}
	return nil
}

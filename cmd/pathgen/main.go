package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"pathgen/pkg/config"
	"pathgen/pkg/oracle"
	"pathgen/pkg/rules"
	"pathgen/pkg/scenario"
	"pathgen/pkg/solver"
)

// 命令行参数
var (
	configPath = pflag.StringP("config", "c", "", "Configuration file path (YAML or JSON)")
	rulesPath  = pflag.StringP("rules", "r", "", "Trigger rules file (overrides config)")
	outputPath = pflag.StringP("output", "o", "", "Output Java file (default: stdout)")
	className  = pflag.String("class", "", "Test class name (overrides config)")
	strategy   = pflag.String("solver", "", "Solver strategy: local, z3, hybrid (overrides config)")
	workers    = pflag.IntP("workers", "w", 0, "Number of concurrent generation workers")
	verbose    = pflag.BoolP("verbose", "v", false, "Enable verbose logging")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pathgen [flags] scenario.yaml...\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	if pflag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one scenario file is required\n\n")
		pflag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[Main] Received interrupt signal, stopping...")
		cancel()
	}()

	if err := run(ctx, cfg, pflag.Args()); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if pflag.Lookup("rules").Changed {
		cfg.Rules = *rulesPath
	}
	if pflag.Lookup("output").Changed {
		cfg.Generator.Output = *outputPath
	}
	if *className != "" {
		cfg.Generator.ClassName = *className
	}
	if *strategy != "" {
		cfg.Solver.Strategy = *strategy
	}
	if *workers > 0 {
		cfg.Generator.Workers = *workers
	}
	if *verbose {
		cfg.Verbose = true
	}
	cfg.MergeWithDefaults()
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, files []string) error {
	s, closeSolver, err := solver.New(&cfg.Solver)
	if err != nil {
		return fmt.Errorf("failed to create solver: %w", err)
	}
	defer closeSolver()

	var extra *rules.Table
	if cfg.Rules != "" {
		if extra, err = rules.LoadFile(cfg.Rules); err != nil {
			return err
		}
		log.Printf("[Main] Loaded %d trigger rules from %s", extra.Len(), cfg.Rules)
	}

	runner := scenario.NewRunner(s, extra)
	runner.Verbose = cfg.Verbose

	startTime := time.Now()
	var paths []oracle.Path
	for _, file := range files {
		f, err := scenario.Load(file)
		if err != nil {
			return err
		}
		ps, err := runner.Run(ctx, f)
		if err != nil {
			return err
		}
		log.Printf("[Main] %s: %d paths", f.Name, len(ps))
		paths = append(paths, ps...)
	}

	gen := oracle.NewGenerator(cfg.OracleOptions())
	gen.FormatPrologue(cfg.Generator.ClassName)
	if err := gen.FormatBatch(ctx, paths, cfg.Generator.Workers); err != nil {
		return fmt.Errorf("failed to generate tests: %w", err)
	}
	gen.FormatEpilogue()

	if cfg.Generator.Output == "" {
		fmt.Print(gen.Emit())
	} else if err := os.WriteFile(cfg.Generator.Output, []byte(gen.Emit()), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.Printf("[Main] Generated %d test cases in %v", gen.Count(), time.Since(startTime))
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/apiflow-dev/apiflow-runner/pkg/config"
	"github.com/apiflow-dev/apiflow-runner/pkg/core"
	"github.com/apiflow-dev/apiflow-runner/pkg/executor"
	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
	"github.com/apiflow-dev/apiflow-runner/pkg/logger"
	"github.com/apiflow-dev/apiflow-runner/pkg/progress"
	"github.com/apiflow-dev/apiflow-runner/pkg/report"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run a flow file or a folder of flows",
	ArgsUsage: "<flow-file-or-folder>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment variables (KEY=VALUE)",
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "Base URL resolved against relative step URLs",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Request timeout in ms",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
			Value: "./reports",
		},
		&cli.DurationFlag{
			Name:  "pacing",
			Usage: "Delay between steps (cosmetic)",
		},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one flow file or folder")
	}
	target := c.Args().First()

	cfg, err := loadWorkspaceConfig(c, target)
	if err != nil {
		return err
	}

	outputDir := c.String("output")
	if cfg.Output != "" && !c.IsSet("output") {
		outputDir = cfg.Output
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := logger.Init(filepath.Join(outputDir, "runner.log")); err != nil {
		return err
	}
	defer logger.Close()

	writer, err := report.NewWriter(outputDir)
	if err != nil {
		return err
	}

	runEnv := make(map[string]string)
	for k, v := range cfg.Env {
		runEnv[k] = v
	}
	for _, kv := range c.StringSlice("env") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			runEnv[parts[0]] = parts[1]
		}
	}

	flowCfg := flow.Config{
		BaseURL: cfg.BaseURL,
		Headers: cfg.Headers,
		Timeout: cfg.Timeout,
	}
	if c.String("base-url") != "" {
		flowCfg.BaseURL = c.String("base-url")
	}
	if c.Int("timeout") > 0 {
		flowCfg.Timeout = c.Int("timeout")
	}

	// Ctrl-C cancels the run cooperatively: in-flight requests settle,
	// remaining steps report as cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(target)
	if err != nil {
		return err
	}

	reconciler := progress.NewReconciler(nil, osSourceProvider{})

	runner := executor.NewRunner(executor.RunnerConfig{
		Sink:     reconciler,
		Config:   flowCfg,
		Pacing:   c.Duration("pacing"),
		Reporter: writer,
		Env:      runEnv,
	})

	onStep := func(sr core.StepResult) {
		printStep(sr)
	}

	start := time.Now()
	var results []*core.TestResult

	if info.IsDir() {
		paths, err := collectFlows(target)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no flow files found in %s", target)
		}
		results, err = runner.RunFolder(ctx, target, paths, nil, onStep)
		if err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(target) //#nosec G304 -- user-provided flow file
		if err != nil {
			return err
		}
		result, err := runner.RunFlow(ctx, data, target, filepath.Base(target), nil, onStep)
		if err != nil {
			return err
		}
		results = append(results, result)
	}

	return printSummary(results, time.Since(start))
}

func loadWorkspaceConfig(c *cli.Context, target string) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	dir := target
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		dir = filepath.Dir(target)
	}
	return config.LoadFromDir(dir)
}

// collectFlows returns the YAML flow files directly inside dir.
func collectFlows(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			if name == "config.yaml" || name == "config.yml" {
				continue
			}
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

func printStep(sr core.StepResult) {
	indent := strings.Repeat("  ", sr.Depth)
	switch sr.Status {
	case core.StatusPassed:
		fmt.Printf("%s✓ %s (%dms)\n", indent, sr.Name, sr.Duration.Milliseconds())
	case core.StatusFailed:
		fmt.Printf("%s✗ %s: %s\n", indent, sr.Name, sr.Error)
	case core.StatusCancelled:
		fmt.Printf("%s- %s (cancelled)\n", indent, sr.Name)
	}
}

func printSummary(results []*core.TestResult, elapsed time.Duration) error {
	passed, failed := 0, 0
	anyFailed := false
	for _, r := range results {
		passed += r.Passed
		failed += r.Failed
		if r.Status == core.StatusFailed {
			anyFailed = true
		}
	}
	fmt.Printf("\n%d passed, %d failed in %s\n", passed, failed, elapsed.Round(time.Millisecond))
	if anyFailed {
		return fmt.Errorf("%d step(s) failed", failed)
	}
	return nil
}

// osSourceProvider feeds flow source text to the reconciler's line mapper.
type osSourceProvider struct{}

func (osSourceProvider) Source(fileID string) (string, bool) {
	data, err := os.ReadFile(fileID) //#nosec G304 -- fileID is a resolved flow path
	if err != nil {
		return "", false
	}
	return string(data), true
}

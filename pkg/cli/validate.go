package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Parse flow files and check references without executing",
	ArgsUsage: "<flow-file-or-folder>",
	Action:    validateAction,
}

func validateAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one flow file or folder")
	}
	target := c.Args().First()

	info, err := os.Stat(target)
	if err != nil {
		return err
	}

	var paths []string
	if info.IsDir() {
		paths, err = collectFlows(target)
		if err != nil {
			return err
		}
	} else {
		paths = []string{target}
	}

	problems := 0
	for _, path := range paths {
		tf, err := flow.ParseFile(path)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", path, err)
			problems++
			continue
		}
		if errs := checkReferences(tf, map[string]bool{filepath.Clean(path): true}); len(errs) > 0 {
			for _, e := range errs {
				fmt.Printf("✗ %s: %v\n", path, e)
			}
			problems += len(errs)
			continue
		}
		fmt.Printf("✓ %s\n", path)
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	return nil
}

// checkReferences walks flow references depth-first, reporting missing
// files, parse failures, and reference cycles.
func checkReferences(tf *flow.TestFlow, chain map[string]bool) []error {
	var errs []error
	baseDir := filepath.Dir(tf.SourcePath)

	steps := tf.Flatten()
	if len(steps) == 0 && tf.Flow != "" {
		steps = []flow.TestStep{{Flow: tf.Flow}}
	}

	for _, step := range steps {
		if !step.IsFlowReference() {
			continue
		}
		refPath := step.Flow
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(baseDir, refPath)
		}
		refPath = filepath.Clean(refPath)

		if chain[refPath] {
			errs = append(errs, fmt.Errorf("cyclic flow reference: %s", step.Flow))
			continue
		}

		child, err := flow.ParseFile(refPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("flow reference %s: %w", step.Flow, err))
			continue
		}

		chain[refPath] = true
		errs = append(errs, checkReferences(child, chain)...)
		delete(chain, refPath)
	}

	return errs
}

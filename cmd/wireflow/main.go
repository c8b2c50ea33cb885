package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wireflow-dev/wireflow/pkg/codegen"
	"github.com/wireflow-dev/wireflow/pkg/script"
	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var verbose bool

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wireflow",
		Short: "Wireflow — workflow graph ⇄ program translator",
		Long: `Wireflow converts node-and-wire workflow graphs to editable programs
and back.

"codegen" turns a workflow JSON document into a builder-style program;
"build" interprets a program back into workflow JSON. Both directions
preserve wiring exactly, including join inputs, error outputs, and cycles.`,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.AddCommand(codegenCmd())
	root.AddCommand(buildCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	return root
}

// logger returns the process logger: development-level output under
// --verbose, otherwise silent.
func logger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// ─── codegen ─────────────────────────────────────────────────────────────────

func codegenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "codegen <workflow.json>",
		Short: "Generate program text from a workflow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			w, err := workflow.Parse(data)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			if lintErrs := workflow.Validate(w); len(lintErrs) > 0 {
				printLintErrors(lintErrs)
				return fmt.Errorf("workflow has %d validation errors", len(lintErrs))
			}

			src, err := codegen.Generate(w, logger())
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			path := out
			if path == "" {
				path = outputPath(args[0], ".flow.js")
			}
			if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output path (default: timestamped next to input)")
	return cmd
}

// ─── build ───────────────────────────────────────────────────────────────────

func buildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build <program.flow.js>",
		Short: "Interpret a program back into workflow JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			w, err := script.Interpret(string(src))
			if err != nil {
				return fmt.Errorf("interpret: %w", err)
			}
			if lintErrs := workflow.Validate(w); len(lintErrs) > 0 {
				printLintErrors(lintErrs)
				return fmt.Errorf("interpreted workflow has %d validation errors", len(lintErrs))
			}

			data, err := w.Marshal()
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = outputPath(args[0], ".json")
			}
			if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output path (default: timestamped next to input)")
	return cmd
}

// ─── lint ────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <workflow.json|program.flow.js>",
		Short: "Validate a workflow document or a program without converting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			if strings.HasSuffix(args[0], ".json") {
				w, err := workflow.Parse(data)
				if err != nil {
					return fmt.Errorf("parse: %w", err)
				}
				if lintErrs := workflow.Validate(w); len(lintErrs) > 0 {
					printLintErrors(lintErrs)
					return fmt.Errorf("%d validation errors", len(lintErrs))
				}
				fmt.Printf("OK: workflow %q is valid (%d nodes, %d connections)\n",
					w.Name, len(w.Nodes), w.ConnectionCount())
				return nil
			}

			prog, err := script.Parse(string(data))
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			if err := script.ValidateProgram(prog); err != nil {
				return err
			}
			fmt.Printf("OK: program is valid (%d statements)\n", len(prog.Stmts))
			return nil
		},
	}
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func printLintErrors(errs []workflow.LintError) {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  %v\n", e)
	}
}

// outputPath derives a timestamped output path next to the input, bumping a
// numeric suffix until the path is free so repeated runs never clobber
// earlier output.
func outputPath(input, ext string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	base = strings.TrimSuffix(base, ".flow")
	stamp := time.Now().Format("20060102-150405")

	candidate := fmt.Sprintf("%s-%s%s", base, stamp, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%s-%d%s", base, stamp, i, ext)
	}
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/spf13/cobra"

	"organizer/internal/app"
	"organizer/internal/config"
	"organizer/internal/core"
	"organizer/internal/model"
)

// exitCoder lets a RunE return a specific process exit code without
// cobra printing its own usage/error banner for every path; main
// inspects the error chain for one before falling back to exit 1.
type exitCoder struct {
	code int
	err  error
}

func (e *exitCoder) Error() string { return e.err.Error() }
func (e *exitCoder) Unwrap() error { return e.err }

func exitErr(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCoder{code: code, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		code := 1
		var ec *exitCoder
		for e := err; e != nil; {
			if x, ok := e.(*exitCoder); ok {
				ec = x
				break
			}
			u, ok := e.(interface{ Unwrap() error })
			if !ok {
				break
			}
			e = u.Unwrap()
		}
		if ec != nil {
			code = ec.code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(code)
	}
}

var rootCmd = &cobra.Command{
	Use:           "organize",
	Short:         "Classify and file personal documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func verbosityFromFlags(cmd *cobra.Command) app.LogVerbosity {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	switch {
	case verbose:
		return app.VerbosityVerbose
	case quiet:
		return app.VerbosityQuiet
	default:
		return app.VerbosityNormal
	}
}

// backendOverride reads the mutually-exclusive backend selector flags
// and, if one was set, returns the classifier backend name it implies.
func backendOverride(cmd *cobra.Command) string {
	for _, pair := range []struct {
		flag, backend string
	}{
		{"local", "local"},
		{"gemini", "gemini"},
		{"openai", "openai"},
		{"rules-only", "rules-only"},
	} {
		if set, _ := cmd.Flags().GetBool(pair.flag); set {
			return pair.backend
		}
	}
	return ""
}

// newApp reads the config file, applies the global backend/model
// overrides from cmd's flags, and constructs an app.App. The caller
// must defer Close.
func newApp(cmd *cobra.Command, command, parameters string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, exitErr(2, fmt.Errorf("getting defaults: %w", err))
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, exitErr(2, fmt.Errorf("reading config: %w", err))
	}

	if backend := backendOverride(cmd); backend != "" {
		cfg.Classifier.Backend = backend
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Classifier.Model = model
	}

	a, err := app.New(context.Background(), cfg, app.Options{
		Command:    command,
		Parameters: parameters,
		Verbosity:  verbosityFromFlags(cmd),
	})
	if err != nil {
		kind, _ := core.KindOf(err)
		if kind == core.ConfigError {
			return nil, exitErr(2, err)
		}
		return nil, exitErr(2, fmt.Errorf("initializing app: %w", err))
	}
	return a, nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print backend and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "info", "")
		if err != nil {
			return err
		}
		defer a.Close()

		status := a.Info()
		fmt.Printf("Backend:         %s\n", status.Backend)
		if status.Model != "" {
			fmt.Printf("Model:           %s\n", status.Model)
		}
		if status.Backend == "local" {
			fmt.Printf("Ollama base URL: %s\n", status.OllamaBaseURL)
		}
		fmt.Printf("Base dir:        %s\n", status.BaseDir)
		fmt.Printf("Output dir:      %s\n", status.OutputDir)
		fmt.Printf("Rules file:      %s\n", status.RulesFile)
		fmt.Printf("Min confidence:  %d\n", status.MinConfidence)
		fmt.Printf("Encryption:      %t\n", status.Encrypted)
		if status.MirrorBucket != "" {
			fmt.Printf("Mirror bucket:   %s\n", status.MirrorBucket)
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Print scan statistics for a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "scan", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Scan(context.Background(), args[0])
		if err != nil {
			return exitErr(2, err)
		}

		fmt.Printf("Files accepted: %d\n", stats.FilesAccepted)
		fmt.Printf("Files skipped:  %d\n", stats.FilesSkipped)
		fmt.Printf("Errors:         %d\n", stats.Errors)
		fmt.Printf("Total bytes:    %d\n", stats.TotalBytes)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <dir>",
	Short: "Scan, classify, and generate a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "plan", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		destination, _ := cmd.Flags().GetString("destination")
		rulesFile, _ := cmd.Flags().GetString("rules")
		rulesOnly, _ := cmd.Flags().GetBool("rules-only")
		copyMode, _ := cmd.Flags().GetBool("copy")
		minConfidence, _ := cmd.Flags().GetInt("min-confidence")

		result, err := a.Plan(context.Background(), args[0], app.PlanOverrides{
			Destination:   destination,
			RulesFile:     rulesFile,
			RulesOnly:     rulesOnly,
			CopyMode:      copyMode,
			MinConfidence: minConfidence,
		})
		if err != nil {
			return exitErr(2, err)
		}

		fmt.Printf("MOVE: %d  COPY: %d  RENAME: %d  SKIP: %d\n",
			result.Plan.Counts.Move, result.Plan.Counts.Copy,
			result.Plan.Counts.Rename, result.Plan.Counts.Skip)
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			fmt.Println()
			fmt.Println(result.Markdown)
		}
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute <plan-file>",
	Short: "Execute a persisted plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		yes, _ := cmd.Flags().GetBool("yes")

		if apply && !yes {
			if !confirmApply(args[0]) {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp(cmd, "execute", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		manifest, err := a.Execute(context.Background(), args[0], apply)
		if err != nil {
			return exitErr(2, err)
		}

		var failed int
		for _, r := range manifest.Results {
			if r.Status == model.StatusFailed {
				failed++
			}
		}
		fmt.Printf("Mode: %s  Items: %d  Failed: %d\n", manifest.Mode, len(manifest.Results), failed)
		if failed > 0 {
			return exitErr(1, fmt.Errorf("%d item(s) failed", failed))
		}
		return nil
	},
}

// confirmApply prompts on a real terminal before a destructive apply
// run; on a non-interactive stdin it declines rather than guessing.
func confirmApply(planPath string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; pass --yes to apply non-interactively")
		return false
	}
	fmt.Printf("Apply plan %s? This will move/copy/rename files. [y/N]: ", planPath)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging and output")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential logging")
	rootCmd.PersistentFlags().Bool("local", false, "Use the local Ollama backend")
	rootCmd.PersistentFlags().Bool("gemini", false, "Use the Gemini backend")
	rootCmd.PersistentFlags().Bool("openai", false, "Use the OpenAI backend")
	rootCmd.PersistentFlags().Bool("rules-only", false, "Skip the LLM classifier entirely")
	rootCmd.PersistentFlags().String("model", "", "Override the classifier model name")

	planCmd.Flags().String("destination", "", "Override the configured base destination")
	planCmd.Flags().String("rules", "", "Override the configured rules file")
	planCmd.Flags().Bool("rules-only", false, "Skip the LLM classifier for this plan")
	planCmd.Flags().Bool("copy", false, "Force copy instead of move for every item")
	planCmd.Flags().Int("min-confidence", -1, "Override the configured minimum confidence")

	executeCmd.Flags().Bool("apply", false, "Apply the plan; default is dry-run")
	executeCmd.Flags().Bool("yes", false, "Skip the confirmation prompt before applying")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(executeCmd)
}

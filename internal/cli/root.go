// Package cli implements the cobra-based CLI commands for sparkenv.
//
// Each subcommand (up, env, status, exec) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags. Invoking the
// binary with no arguments runs the full provisioning sequence, matching
// the bootstrap script this tool replaces.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sparkenv/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, all output uses structured JSON format for machine
	// consumption. When false (default), output is human-readable text
	// plus shell-evaluable export lines.
	jsonOutput bool

	// verbose enables detailed logging output for debugging.
	// When true, progress information is printed to stderr.
	verbose bool

	// configPath overrides the config file discovery with an explicit
	// path (--config). Empty means probe the working directory for
	// .sparkenv.yaml / .sparkenv.yml / .sparkenv.json.
	configPath string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// Running the root command without a subcommand executes the full
// provisioning sequence (equivalent to `sparkenv up`), so the plain
// `sparkenv` invocation provisions the current directory.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sparkenv",
		Short: "Python/PySpark toolchain provisioner for project directories",
		Long: `sparkenv provisions the Python toolchain a PySpark project needs:
it ensures the target interpreter version is installed under pyenv,
creates and activates a project virtualenv, installs pyspark when its
entry point is missing, derives SPARK_HOME and PYSPARK_PYTHON from the
installed distribution, and pins the directory via pyenv local.

Run it with no arguments to provision the current directory, then load
the exports into your shell:

  eval "$(sparkenv env)"`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// Bare `sparkenv` runs the provisioning sequence.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp()
		},
	}

	// PersistentFlags are inherited by all subcommands. This is the cobra
	// mechanism for global flags — any flag defined here is automatically
	// available in every subcommand without re-declaration.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a sparkenv config file")

	// Register subcommands. Each subcommand is defined in its own file
	// (up.go, env.go, etc.) and returns a *cobra.Command.
	rootCmd.AddCommand(NewUpCommand())
	rootCmd.AddCommand(NewEnvCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewExecCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// It inspects errors returned by cobra commands and translates them
// into appropriate OS exit codes. CLIError types carry their own
// exit codes; other errors default to exit code 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		// Check if the error is a CLIError with a specific exit code.
		if cliErr, ok := err.(*model.CLIError); ok {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		// Generic error — exit with code 1.
		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout is
		// reserved for successful command output (and for export lines
		// that callers may eval).
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
// This is used throughout the CLI for progress output that helps users
// understand which provisioning steps are being performed.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

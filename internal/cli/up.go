// up.go implements the "sparkenv up" command — the full provisioning
// sequence. It is also what a bare `sparkenv` invocation runs.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sparkenv/internal/config"
	"github.com/mmr-tortoise/sparkenv/internal/model"
	"github.com/mmr-tortoise/sparkenv/internal/provision"
)

// NewUpCommand creates the "up" cobra command.
func NewUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Provision the Python toolchain for the current directory",
		Long: `Provision the toolchain described by the directory's .sparkenv config
(or the defaults): ensure the interpreter version, create and activate
the virtualenv, install the package if its entry point is missing,
derive the exports, and pin the directory with pyenv local.

All steps are idempotent — a second run against a provisioned directory
performs no additional side effects.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp()
		},
	}
}

// runUp is the orchestration for `sparkenv up` and the bare root command.
func runUp() error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	tc, err := config.Load(cwd, configPath)
	if err != nil {
		return err
	}
	VerboseLog("Toolchain: python %s, virtualenv %s, package %s", tc.PythonVersion, tc.Virtualenv, tc.Package)

	p := provision.New(VerboseLog)
	report, err := p.Up(cwd, tc)
	if err != nil {
		return err
	}

	printUpResult(report)
	return nil
}

// printUpResult outputs the provisioning report in text or JSON format.
func printUpResult(report *model.ProvisionReport) {
	if IsJSONOutput() {
		printUpResultJSON(report)
	} else {
		printUpResultText(report)
	}
}

// printUpResultJSON outputs the report as structured JSON. Failed step
// errors are already folded into each step's Detail by the provisioner.
func printUpResultJSON(report *model.ProvisionReport) {
	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(data))
}

// printUpResultText outputs the report as human-readable text followed
// by shell-evaluable export lines.
func printUpResultText(report *model.ProvisionReport) {
	tc := report.Toolchain

	if report.Performed() {
		fmt.Printf("Provisioned virtualenv %q (python %s)\n", tc.Virtualenv, tc.PythonVersion)
	} else {
		fmt.Printf("Virtualenv %q already provisioned (python %s)\n", tc.Virtualenv, tc.PythonVersion)
	}

	for _, s := range report.Steps {
		fmt.Printf("  %-18s %-10s %s\n", s.Step, s.Status, s.Detail)
	}

	fmt.Println()
	fmt.Println("Load the exports into your shell with: eval \"$(sparkenv env)\"")
	printExportLines(report.Exports, tc)
}

// printExportLines emits one POSIX export statement per variable.
func printExportLines(exports map[string]string, tc model.Toolchain) {
	for _, line := range formatExportLines(exports, tc) {
		fmt.Println(line)
	}
}

// formatExportLines renders one POSIX export statement per variable, in a
// fixed order (home var, python var) so the output is stable for eval.
// Values are single-quoted; embedded single quotes are escaped with the
// standard '\'' sequence.
func formatExportLines(exports map[string]string, tc model.Toolchain) []string {
	lines := make([]string, 0, 2)
	for _, name := range []string{tc.HomeVar, tc.PythonVar} {
		lines = append(lines, fmt.Sprintf("export %s=%s", name, shellQuote(exports[name])))
	}
	return lines
}

// shellQuote wraps a value in single quotes for safe shell evaluation.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

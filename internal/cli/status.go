// status.go implements the "sparkenv status" command: read-only presence
// checks with no side effects.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sparkenv/internal/config"
	"github.com/mmr-tortoise/sparkenv/internal/model"
	"github.com/mmr-tortoise/sparkenv/internal/provision"
)

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what a provisioning run would still have to do",
		Long: `Run the presence checks of the provisioning sequence without executing
any side effects: interpreter version, virtualenv, package entry point,
and the pyenv local pin.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

// runStatus inspects the current directory and prints the findings.
func runStatus() error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	tc, err := config.Load(cwd, configPath)
	if err != nil {
		return err
	}

	p := provision.New(VerboseLog)
	status, err := p.Inspect(cwd, tc)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	printStatusText(status, tc)
	return nil
}

// printStatusText outputs the presence checks as human-readable text.
func printStatusText(status *provision.Status, tc *model.Toolchain) {
	fmt.Printf("Toolchain for virtualenv %q (python %s)\n", tc.Virtualenv, tc.PythonVersion)
	fmt.Printf("  pyenv:        %s\n", presence(status.PyenvFound))
	fmt.Printf("  python %-6s %s\n", tc.PythonVersion+":", presence(status.VersionPresent))
	fmt.Printf("  virtualenv:   %s\n", presence(status.VirtualenvPresent))
	fmt.Printf("  %-13s %s\n", tc.Entrypoint+":", presence(status.EntrypointPresent))

	if status.LocalPin != "" {
		fmt.Printf("  local pin:    %s\n", status.LocalPin)
	} else {
		fmt.Printf("  local pin:    (none)\n")
	}

	fmt.Println()
	if status.Ready() {
		fmt.Println("Everything present; `sparkenv up` would only refresh exports and the pin.")
	} else {
		fmt.Println("Missing pieces found; run `sparkenv up` to provision them.")
	}
}

// presence renders a boolean presence check for text output.
func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

// env.go implements the "sparkenv env" command: re-derive the exports
// without side effects and print them for shell evaluation.
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

// NewEnvCommand creates the "env" cobra command.
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the export statements for the provisioned toolchain",
		Long: `Derive the export values from the current pyenv/pip state and print
them as POSIX export statements, without installing anything:

  eval "$(sparkenv env)"

When the package is not installed the derivation degrades to empty
values; run "sparkenv up" first.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnv()
		},
	}
}

// runEnv derives the export map and prints it. Derivation failures are
// reported on stderr in verbose mode only; the command still emits both
// export lines (possibly empty) so eval remains safe.
func runEnv() error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	tc, err := config.Load(cwd, configPath)
	if err != nil {
		return err
	}

	p := provision.New(VerboseLog)
	exports, err := p.Exports(tc)
	if err != nil {
		// A missing pyenv is fatal; anything else is the documented
		// degraded path (empty values).
		if cliErr, ok := err.(*model.CLIError); ok && cliErr.Code == model.ExitPyenvNotFound {
			return err
		}
		VerboseLog("export derivation incomplete: %v", err)
	}
	if exports == nil {
		exports = map[string]string{}
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(exports, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	printExportLines(exports, *tc)
	return nil
}

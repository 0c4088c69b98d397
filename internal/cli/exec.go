// exec.go implements the "sparkenv exec" command: run a child process
// with the virtualenv activated and the derived exports set, so the
// variables are inherited the way the original shell exports were.
package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sparkenv/internal/config"
	"github.com/mmr-tortoise/sparkenv/internal/model"
	"github.com/mmr-tortoise/sparkenv/internal/provision"
)

// NewExecCommand creates the "exec" cobra command.
func NewExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <command> [args...]",
		Short: "Run a command with the provisioned environment",
		Long: `Run a command with PYENV_VERSION pointing at the project virtualenv and
the derived exports (SPARK_HOME, PYSPARK_PYTHON by default) plus any
configured extraEnv variables set in its environment.

Examples:
  sparkenv exec -- python -c 'import pyspark; print(pyspark.__version__)'
  sparkenv exec -- pyspark`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(args[0], args[1:])
		},
	}
}

// runExec derives the environment and replaces stdio with the child's.
// The child's exit code is propagated as our own.
func runExec(name string, args []string) error {
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
		if cliErr, ok := err.(*model.CLIError); ok && cliErr.Code == model.ExitPyenvNotFound {
			return err
		}
		// Degraded exports still let commands that don't need them run.
		VerboseLog("export derivation incomplete: %v", err)
	}

	activation := p.Pyenv.ActivationEnv(tc.Virtualenv)
	env := provision.ChildEnv(tc, activation, exports)

	VerboseLog("Running %s with virtualenv %s", name, tc.Virtualenv)

	// #nosec G204 — running the user's own command is this subcommand's job
	child := exec.Command(name, args...)
	child.Env = env
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Propagate the child's exit code unchanged.
			return &model.CLIError{
				Code:    model.ExitCode(exitErr.ExitCode()),
				Message: fmt.Sprintf("%s exited with code %d", name, exitErr.ExitCode()),
				Err:     err,
			}
		}
		return model.WrapCLIError(model.ExitChildError,
			fmt.Sprintf("failed to run %s", name), err)
	}
	return nil
}

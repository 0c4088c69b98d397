package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Toolchain describes the Python toolchain a project directory requires.
// It is assembled by the config package from .sparkenv.yaml/.sparkenv.json
// plus defaults, and consumed by the provisioner.
type Toolchain struct {
	// PythonVersion is the target interpreter version. It is matched as a
	// substring against `pyenv versions --bare` output, so "3.11" matches
	// any installed 3.11.x.
	PythonVersion string `json:"pythonVersion" yaml:"pythonVersion"`

	// Virtualenv is the name of the pyenv virtualenv to create/activate.
	Virtualenv string `json:"virtualenv" yaml:"virtualenv"`

	// Package is the pip distribution to ensure (e.g. "pyspark").
	Package string `json:"package" yaml:"package"`

	// Entrypoint is the executable whose presence in the virtualenv
	// decides whether Package needs installing.
	Entrypoint string `json:"entrypoint" yaml:"entrypoint"`

	// HomeVar is the name of the exported variable holding the derived
	// package root (default SPARK_HOME).
	HomeVar string `json:"homeVar" yaml:"homeVar"`

	// PythonVar is the name of the exported variable holding the active
	// interpreter's binary path (default PYSPARK_PYTHON).
	PythonVar string `json:"pythonVar" yaml:"pythonVar"`

	// ExtraEnv holds additional variables injected into `sparkenv exec`
	// children alongside the two derived exports.
	ExtraEnv map[string]string `json:"extraEnv,omitempty" yaml:"extraEnv,omitempty"`
}

// Validate checks that the toolchain describes a runnable provisioning
// sequence. The version string is deliberately NOT validated beyond being
// non-empty; matching against installed versions is a plain substring test.
func (tc *Toolchain) Validate() error {
	if tc.PythonVersion == "" {
		return fmt.Errorf("toolchain: python version must not be empty")
	}
	if err := ValidateVirtualenvName(tc.Virtualenv); err != nil {
		return err
	}
	if tc.Package == "" {
		return fmt.Errorf("toolchain: package must not be empty")
	}
	if tc.Entrypoint == "" {
		return fmt.Errorf("toolchain: entrypoint must not be empty")
	}
	if tc.HomeVar == "" || tc.PythonVar == "" {
		return fmt.Errorf("toolchain: export variable names must not be empty")
	}
	return nil
}

// venvNameRegex validates virtualenv names: alphanumeric, hyphens,
// underscores and dots, starting and ending with an alphanumeric.
var venvNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateVirtualenvName checks if the given name is a valid pyenv
// virtualenv name. Valid names contain only alphanumeric characters,
// hyphens, underscores and dots, and must start/end with an alphanumeric
// character.
func ValidateVirtualenvName(name string) error {
	if name == "" {
		return fmt.Errorf("virtualenv name must not be empty")
	}
	if !venvNameRegex.MatchString(name) {
		return fmt.Errorf("invalid virtualenv name %q: must contain only alphanumeric characters, hyphens, underscores and dots, and start/end with alphanumeric", name)
	}
	return nil
}

// StepStatus represents the outcome of a single provisioning step.
//
// Each presence check in the sequence is independent; a step is "skipped"
// when its check found nothing to do, which is the expected state on a
// second consecutive run.
type StepStatus string

const (
	// StepPerformed indicates the step's side effect was executed
	// (version installed, virtualenv created, package installed, ...).
	StepPerformed StepStatus = "performed"

	// StepSkipped indicates the presence check was satisfied and the
	// side effect was not needed.
	StepSkipped StepStatus = "skipped"

	// StepFailed indicates the step's external command exited non-zero.
	// Whether a failure aborts the run depends on the step: package
	// installation is best-effort, everything before it is not.
	StepFailed StepStatus = "failed"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid checks whether the StepStatus value is one of the predefined
// valid outcomes.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPerformed, StepSkipped, StepFailed:
		return true
	default:
		return false
	}
}

// ParseStepStatus converts a string to a StepStatus.
// Returns an error if the string does not match any valid outcome.
func ParseStepStatus(s string) (StepStatus, error) {
	status := StepStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid step status: %q (valid: performed, skipped, failed)", s)
	}
	return status, nil
}

// Step identifies one stage of the provisioning sequence.
type Step string

const (
	// StepEnsureVersion installs the target interpreter version if absent.
	StepEnsureVersion Step = "ensure-version"

	// StepEnsureVirtualenv creates the named virtualenv if absent.
	StepEnsureVirtualenv Step = "ensure-virtualenv"

	// StepActivate selects the virtualenv for the rest of the run.
	StepActivate Step = "activate"

	// StepEnsurePackage installs the package if its entrypoint is missing.
	StepEnsurePackage Step = "ensure-package"

	// StepDeriveExports queries package metadata and the interpreter path
	// and computes the two export values.
	StepDeriveExports Step = "derive-exports"

	// StepPinLocal writes the directory-to-virtualenv association via
	// `pyenv local`.
	StepPinLocal Step = "pin-local"
)

// String returns the string representation of Step.
func (s Step) String() string {
	return string(s)
}

// StepResult records the outcome of one provisioning step.
type StepResult struct {
	// Step identifies which stage this result belongs to.
	Step Step `json:"step"`

	// Status is the outcome of the stage.
	Status StepStatus `json:"status"`

	// Detail is a short human-readable note ("3.11.9 already installed",
	// "created virtualenv delta-dev", ...). May be empty.
	Detail string `json:"detail,omitempty"`

	// Err holds the failure when Status is StepFailed. Not serialized;
	// the CLI folds it into Detail for JSON output.
	Err error `json:"-"`
}

// ProvisionReport is the aggregate outcome of a provisioning run.
type ProvisionReport struct {
	// Toolchain is the description the run provisioned.
	Toolchain Toolchain `json:"toolchain"`

	// Steps lists per-step outcomes in execution order.
	Steps []StepResult `json:"steps"`

	// Exports maps variable names to the derived values, e.g.
	// SPARK_HOME and PYSPARK_PYTHON. Values may be empty when the
	// package install or metadata query failed (best-effort semantics).
	Exports map[string]string `json:"exports"`
}

// Performed reports whether any of the presence-checked steps (version
// install, virtualenv creation, package install) executed its side
// effect. A re-run against an already provisioned directory returns
// false: activation, export derivation and the local pin always run but
// change nothing the second time.
func (r *ProvisionReport) Performed() bool {
	for _, s := range r.Steps {
		switch s.Step {
		case StepEnsureVersion, StepEnsureVirtualenv, StepEnsurePackage:
			if s.Status == StepPerformed {
				return true
			}
		}
	}
	return false
}

// Failed returns the first failed step, if any.
func (r *ProvisionReport) Failed() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return s, true
		}
	}
	return StepResult{}, false
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the .sparkenv config file is invalid.
	ExitConfigError ExitCode = 2

	// ExitPyenvNotFound indicates the pyenv binary is not on PATH.
	ExitPyenvNotFound ExitCode = 3

	// ExitPyenvError indicates a pyenv operation (install, virtualenv
	// creation, local pin) failed.
	ExitPyenvError ExitCode = 4

	// ExitChildError indicates the command given to `sparkenv exec`
	// could not be started. A child that starts and exits non-zero has
	// its own exit code propagated instead.
	ExitChildError ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

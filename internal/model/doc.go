// Package model defines the domain types and value objects for the
// sparkenv CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (Toolchain, StepResult, ProvisionReport) are transient: they
// describe a single provisioning run and are discarded when the process
// exits. The only on-disk state sparkenv produces is pyenv's own
// .python-version pin, which pyenv manages.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model

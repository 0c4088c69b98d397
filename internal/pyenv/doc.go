// Package pyenv wraps the pyenv version manager for the sparkenv CLI.
//
// All pyenv operations are performed via os/exec calls to the pyenv binary,
// rather than reimplementing its on-disk layout. This approach:
//   - Uses the exact same behavior the user sees in their terminal
//   - Keeps pyenv's store (~/.pyenv) fully owned by pyenv
//   - Requires pyenv with the pyenv-virtualenv plugin installed
//
// The Manager struct provides methods for listing and installing
// interpreter versions, creating virtualenvs, resolving executables via
// `pyenv which`, and pinning a directory with `pyenv local`.
//
// Activation is session-scoped: rather than sourcing shell functions,
// Manager.ActivationEnv returns a PYENV_VERSION override that is injected
// into the environment of every subsequent child process, which is how
// pyenv itself resolves a selected version non-interactively.
package pyenv

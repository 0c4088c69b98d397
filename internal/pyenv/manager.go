package pyenv

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/sparkenv/internal/model"
)

// Manager provides pyenv operations by invoking the pyenv CLI.
//
// It is stateless apart from the binary name — all methods receive their
// inputs as parameters. The struct exists as a receiver so callers hold a
// single handle and so the binary path stays configurable for tests.
type Manager struct {
	// bin is the pyenv executable name or path. Defaults to "pyenv" and
	// is resolved through PATH at invocation time.
	bin string
}

// NewManager creates a new pyenv Manager using the "pyenv" binary from PATH.
func NewManager() *Manager {
	return &Manager{bin: "pyenv"}
}

// NewManagerWithBinary creates a Manager that invokes the given executable
// instead of "pyenv". Used by tests to point at a stub binary.
func NewManagerWithBinary(bin string) *Manager {
	return &Manager{bin: bin}
}

// Installed reports whether the pyenv binary can be resolved via PATH.
// Callers should check this before starting a provisioning run so the
// failure surfaces as a single clear error instead of per-step noise.
func (m *Manager) Installed() bool {
	_, err := exec.LookPath(m.bin)
	return err == nil
}

// Versions returns the installed interpreter versions and virtualenvs,
// one name per line as reported by `pyenv versions --bare`.
//
// The --bare flag strips the decoration pyenv adds for human output
// (the "*" marker for the active version, the origin annotations), so
// each line is a plain version or virtualenv name.
func (m *Manager) Versions() ([]string, error) {
	output, err := m.run(nil, "versions", "--bare")
	if err != nil {
		return nil, err
	}
	return splitLines(output), nil
}

// HasVersion reports whether any installed version matches the target.
//
// Matching is a plain substring test, mirroring how a `pyenv versions |
// grep` check behaves: "3.11" matches "3.11.9" and also a virtualenv
// built on 3.11. No semantic version comparison is performed.
func (m *Manager) HasVersion(version string) (bool, error) {
	versions, err := m.Versions()
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if strings.Contains(v, version) {
			return true, nil
		}
	}
	return false, nil
}

// InstallVersion installs the given interpreter version into pyenv's store.
// This shells out to `pyenv install <version>`, which downloads and builds
// the interpreter — it can take minutes. Progress goes to the user's
// stderr via pyenv itself; we only capture the final status.
func (m *Manager) InstallVersion(version string) error {
	_, err := m.run(nil, "install", version)
	return err
}

// Virtualenvs returns the names of existing virtualenvs as reported by
// `pyenv virtualenvs --bare`. Requires the pyenv-virtualenv plugin.
//
// The bare listing contains each virtualenv twice: once as the plain name
// and once as "<version>/envs/<name>". Callers matching by name are
// unaffected; both forms contain the name.
func (m *Manager) Virtualenvs() ([]string, error) {
	output, err := m.run(nil, "virtualenvs", "--bare")
	if err != nil {
		return nil, err
	}
	return splitLines(output), nil
}

// HasVirtualenv reports whether a virtualenv with the given name exists.
// Unlike version matching this compares whole path segments, so "dev"
// does not match "delta-dev".
func (m *Manager) HasVirtualenv(name string) (bool, error) {
	envs, err := m.Virtualenvs()
	if err != nil {
		return false, err
	}
	for _, e := range envs {
		// Compare against the last path segment to cover the
		// "<version>/envs/<name>" form in the bare listing.
		if e == name || strings.HasSuffix(e, "/"+name) {
			return true, nil
		}
	}
	return false, nil
}

// CreateVirtualenv creates a named virtualenv on the given interpreter
// version via `pyenv virtualenv <version> <name>`.
func (m *Manager) CreateVirtualenv(version, name string) error {
	_, err := m.run(nil, "virtualenv", version, name)
	return err
}

// ActivationEnv returns the environment overlay that selects the named
// virtualenv for child processes. Setting PYENV_VERSION is pyenv's
// non-interactive equivalent of `pyenv activate`: every `pyenv which`,
// `pyenv exec` and shim invocation in that environment resolves against
// the named virtualenv. The selection lives and dies with the process
// environment; nothing is persisted.
func (m *Manager) ActivationEnv(name string) []string {
	return []string{"PYENV_VERSION=" + name}
}

// Which resolves an executable name to its absolute path inside the
// environment selected by extraEnv (see ActivationEnv), using
// `pyenv which <name>`. Returns a CLIError if the executable is not
// present in the selected environment.
func (m *Manager) Which(name string, extraEnv []string) (string, error) {
	output, err := m.run(extraEnv, "which", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// SetLocal pins the given directory to a version or virtualenv by running
// `pyenv local <name>` in that directory. pyenv records the association
// in a .python-version file it owns; future shell sessions in the
// directory resolve to the pinned environment automatically.
func (m *Manager) SetLocal(dir, name string) error {
	_, err := m.runIn(dir, nil, "local", name)
	return err
}

// Local returns the version or virtualenv the given directory is pinned
// to, or an empty string if no pin exists.
func (m *Manager) Local(dir string) (string, error) {
	output, err := m.runIn(dir, nil, "local")
	if err != nil {
		// `pyenv local` exits non-zero when no local version is set.
		// That is an answer, not a failure.
		return "", nil
	}
	return strings.TrimSpace(output), nil
}

// run executes a pyenv subcommand in the current working directory.
func (m *Manager) run(extraEnv []string, args ...string) (string, error) {
	return m.runIn("", extraEnv, args...)
}

// runIn executes a pyenv subcommand with the given arguments, optionally
// in a specific working directory and with extra environment variables
// appended to the inherited environment.
//
// It captures stdout and stderr separately. On success (exit code 0), it
// returns the stdout output. On failure, it returns a model.CLIError with
// ExitPyenvError (or ExitPyenvNotFound when the binary itself is missing),
// including the stderr output in the error message for diagnostics.
func (m *Manager) runIn(dir string, extraEnv []string, args ...string) (string, error) {
	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command(m.bin, args...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	// Capture stdout and stderr separately so we can include stderr
	// in error messages while returning stdout on success.
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			// The process never started — almost always a missing binary.
			return "", model.WrapCLIError(model.ExitPyenvNotFound,
				fmt.Sprintf("failed to invoke %s", m.bin), err)
		}
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("pyenv %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitPyenvError, message, err)
	}

	return stdout.String(), nil
}

// splitLines splits command output into trimmed, non-empty lines.
func splitLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

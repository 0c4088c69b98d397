package provision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/sparkenv/internal/model"
	"github.com/mmr-tortoise/sparkenv/internal/pip"
	"github.com/mmr-tortoise/sparkenv/internal/pyenv"
)

// harness bundles a Provisioner wired to stateful stub pyenv/pip binaries.
//
// The stubs keep their state (installed versions, virtualenvs, installed
// packages) in plain files under stateDir, so side effects persist across
// invocations and across consecutive Up runs — which is exactly what the
// idempotence tests need to observe.
type harness struct {
	p        *Provisioner
	stateDir string
	project  string
}

// pyenvCalls returns the recorded pyenv invocations.
func (h *harness) pyenvCalls(t *testing.T) []string {
	return readLines(t, filepath.Join(h.stateDir, "pyenv.calls"))
}

// pipCalls returns the recorded pip invocations.
func (h *harness) pipCalls(t *testing.T) []string {
	return readLines(t, filepath.Join(h.stateDir, "pip.calls"))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// harnessOpts selects the failure modes of the stub toolchain.
type harnessOpts struct {
	// pipInstallFails makes the pip stub's install subcommand exit
	// non-zero without mutating state, simulating an unreachable
	// package index.
	pipInstallFails bool

	// pyenvFailCmd names a pyenv subcommand ("install", "virtualenv")
	// that exits non-zero without mutating state, simulating a failed
	// interpreter build or virtualenv creation.
	pyenvFailCmd string
}

// newHarness builds the stub toolchain with the given failure modes.
func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	stateDir := t.TempDir()
	project := t.TempDir()

	versionInstallBody := `
    echo "$2.9" >> $STATE/versions
    ;;`
	if opts.pyenvFailCmd == "install" {
		versionInstallBody = `
    echo "BUILD FAILED (python-build)" >&2
    exit 1
    ;;`
	}

	virtualenvBody := `
    echo "$3" >> $STATE/virtualenvs
    ;;`
	if opts.pyenvFailCmd == "virtualenv" {
		virtualenvBody = `
    echo "pyenv-virtualenv: cannot create virtualenv" >&2
    exit 1
    ;;`
	}

	// The pyenv stub: versions/virtualenvs are line-per-name state files,
	// `install`/`virtualenv` append to them, `which` consults the
	// installed-packages file, `local` reads/writes .python-version in
	// its working directory like the real pyenv does.
	pyenvScript := `#!/bin/sh
STATE=` + stateDir + `
echo "$@" >> $STATE/pyenv.calls
case "$1" in
  versions)
    cat $STATE/versions 2>/dev/null || :
    ;;
  install)` + versionInstallBody + `
  virtualenvs)
    cat $STATE/virtualenvs 2>/dev/null || :
    ;;
  virtualenv)` + virtualenvBody + `
  which)
    if [ "$2" = "python" ]; then
      echo "$STATE/envs/$PYENV_VERSION/bin/python"
      exit 0
    fi
    if grep -qx "$2" $STATE/packages 2>/dev/null; then
      echo "$STATE/envs/$PYENV_VERSION/bin/$2"
    else
      echo "pyenv: $2: command not found" >&2
      exit 1
    fi
    ;;
  local)
    if [ -n "$2" ]; then
      echo "$2" > .python-version
    else
      cat .python-version 2>/dev/null || exit 1
    fi
    ;;
esac
`

	installBody := `
    echo "$2" >> $STATE/packages
    mkdir -p $STATE/site-packages/$2
    ;;`
	if opts.pipInstallFails {
		installBody = `
    echo "ERROR: connection to package index failed" >&2
    exit 1
    ;;`
	}

	pipScript := `#!/bin/sh
STATE=` + stateDir + `
echo "$@" >> $STATE/pip.calls
case "$1" in
  install)` + installBody + `
  show)
    if grep -qx "$2" $STATE/packages 2>/dev/null; then
      printf 'Name: %s\nVersion: 3.5.1\nLocation: %s/site-packages\n' "$2" "$STATE"
    else
      echo "WARNING: Package(s) not found: $2" >&2
      exit 1
    fi
    ;;
esac
`

	pyenvBin := filepath.Join(stateDir, "pyenv")
	pipBin := filepath.Join(stateDir, "pip")
	require.NoError(t, os.WriteFile(pyenvBin, []byte(pyenvScript), 0755))
	require.NoError(t, os.WriteFile(pipBin, []byte(pipScript), 0755))

	p := New(nil)
	p.Pyenv = pyenv.NewManagerWithBinary(pyenvBin)
	p.NewInstaller = func(activationEnv []string) *pip.Installer {
		return pip.NewInstallerWithBinary(pipBin, activationEnv)
	}

	return &harness{p: p, stateDir: stateDir, project: project}
}

func testToolchain() *model.Toolchain {
	return &model.Toolchain{
		PythonVersion: "3.11",
		Virtualenv:    "delta-dev",
		Package:       "pyspark",
		Entrypoint:    "pyspark",
		HomeVar:       "SPARK_HOME",
		PythonVar:     "PYSPARK_PYTHON",
	}
}

// hasStep reports whether the report contains an entry for the given step.
func hasStep(report *model.ProvisionReport, step model.Step) bool {
	for _, s := range report.Steps {
		if s.Step == step {
			return true
		}
	}
	return false
}

// stepStatus returns the status of the given step in the report,
// failing the test if the step is absent.
func stepStatus(t *testing.T, report *model.ProvisionReport, step model.Step) model.StepStatus {
	t.Helper()

	for _, s := range report.Steps {
		if s.Step == step {
			return s.Status
		}
	}
	t.Fatalf("step %s missing from report", step)
	return ""
}

// TestUp_FreshProvision runs the full sequence against empty state and
// verifies every side effect happened and both exports are populated.
func TestUp_FreshProvision(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	tc := testToolchain()

	report, err := h.p.Up(h.project, tc)
	require.NoError(t, err)

	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepEnsureVersion))
	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepEnsureVirtualenv))
	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepEnsurePackage))
	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepDeriveExports))
	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepPinLocal))
	assert.True(t, report.Performed())

	// Both exports are non-empty and the home var points at an existing
	// directory (the stub pip "creates" the distribution directory).
	home := report.Exports["SPARK_HOME"]
	require.NotEmpty(t, home)
	info, statErr := os.Stat(home)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
	assert.NotEmpty(t, report.Exports["PYSPARK_PYTHON"])

	// The pin was written into the project directory.
	pin, readErr := os.ReadFile(filepath.Join(h.project, ".python-version"))
	require.NoError(t, readErr)
	assert.Equal(t, "delta-dev\n", string(pin))
}

// TestUp_Idempotent verifies that a second consecutive run performs no
// additional side effects: no install, no virtualenv creation, no pip
// install.
func TestUp_Idempotent(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	tc := testToolchain()

	_, err := h.p.Up(h.project, tc)
	require.NoError(t, err)

	firstPyenvCalls := len(h.pyenvCalls(t))
	firstPipCalls := h.pipCalls(t)

	report, err := h.p.Up(h.project, tc)
	require.NoError(t, err)

	assert.Equal(t, model.StepSkipped, stepStatus(t, report, model.StepEnsureVersion))
	assert.Equal(t, model.StepSkipped, stepStatus(t, report, model.StepEnsureVirtualenv))
	assert.Equal(t, model.StepSkipped, stepStatus(t, report, model.StepEnsurePackage))
	assert.False(t, report.Performed())

	// No mutating invocation happened in the second run.
	for _, call := range h.pyenvCalls(t)[firstPyenvCalls:] {
		assert.NotEqual(t, "install", strings.Fields(call)[0])
		assert.NotEqual(t, "virtualenv", strings.Fields(call)[0])
	}
	var secondInstalls int
	for _, call := range h.pipCalls(t)[len(firstPipCalls):] {
		if strings.HasPrefix(call, "install") {
			secondInstalls++
		}
	}
	assert.Zero(t, secondInstalls)

	// Exports are still derived and non-empty.
	assert.NotEmpty(t, report.Exports["SPARK_HOME"])
	assert.NotEmpty(t, report.Exports["PYSPARK_PYTHON"])
}

// TestUp_PackageInstallFailure reproduces the best-effort degradation:
// the install fails, the run continues to the export and pin steps, and
// the home export ends up empty.
func TestUp_PackageInstallFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{pipInstallFails: true})
	tc := testToolchain()

	report, err := h.p.Up(h.project, tc)
	require.NoError(t, err, "a failed package install must not abort the run")

	assert.Equal(t, model.StepFailed, stepStatus(t, report, model.StepEnsurePackage))
	assert.Equal(t, model.StepFailed, stepStatus(t, report, model.StepDeriveExports))
	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepPinLocal))

	assert.Empty(t, report.Exports["SPARK_HOME"])
	// The interpreter path is independent of the package and still resolves.
	assert.NotEmpty(t, report.Exports["PYSPARK_PYTHON"])

	failed, ok := report.Failed()
	require.True(t, ok)
	assert.Equal(t, model.StepEnsurePackage, failed.Step)
}

// TestUp_VersionInstallFailure verifies that a failed interpreter build
// aborts the run: the error carries the pyenv exit code, the failure is
// recorded in the report, nothing later executes, and — because the pin
// runs last — no .python-version appears in the project directory.
func TestUp_VersionInstallFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{pyenvFailCmd: "install"})
	tc := testToolchain()

	report, err := h.p.Up(h.project, tc)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok, "expected a CLIError, got %T", err)
	assert.Equal(t, model.ExitPyenvError, cliErr.Code)
	assert.Contains(t, cliErr.Message, "BUILD FAILED")

	assert.Equal(t, model.StepFailed, stepStatus(t, report, model.StepEnsureVersion))
	assert.False(t, hasStep(report, model.StepEnsureVirtualenv))
	assert.False(t, hasStep(report, model.StepPinLocal))

	// The aborted run must not pin the directory.
	_, statErr := os.Stat(filepath.Join(h.project, ".python-version"))
	assert.True(t, os.IsNotExist(statErr), "aborted run must not write .python-version")

	// pip was never reached.
	assert.Empty(t, h.pipCalls(t))
}

// TestUp_VirtualenvCreateFailure verifies that a failed virtualenv
// creation aborts the run after the interpreter step, again without
// pinning the directory.
func TestUp_VirtualenvCreateFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{pyenvFailCmd: "virtualenv"})
	tc := testToolchain()

	report, err := h.p.Up(h.project, tc)
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok, "expected a CLIError, got %T", err)
	assert.Equal(t, model.ExitPyenvError, cliErr.Code)

	// The interpreter step completed before the failure.
	assert.Equal(t, model.StepPerformed, stepStatus(t, report, model.StepEnsureVersion))
	assert.Equal(t, model.StepFailed, stepStatus(t, report, model.StepEnsureVirtualenv))
	assert.False(t, hasStep(report, model.StepEnsurePackage))
	assert.False(t, hasStep(report, model.StepPinLocal))

	_, statErr := os.Stat(filepath.Join(h.project, ".python-version"))
	assert.True(t, os.IsNotExist(statErr), "aborted run must not write .python-version")
}

// TestUp_PyenvMissing verifies the run aborts up front with the
// dedicated exit code when pyenv is not on PATH.
func TestUp_PyenvMissing(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.p.Pyenv = pyenv.NewManagerWithBinary(filepath.Join(t.TempDir(), "no-such-pyenv"))

	_, err := h.p.Up(h.project, testToolchain())
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok)
	assert.Equal(t, model.ExitPyenvNotFound, cliErr.Code)
}

// TestExports verifies the read-only derivation path used by
// `sparkenv env`: values come back without any install invocation.
func TestExports(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	tc := testToolchain()

	_, err := h.p.Up(h.project, tc)
	require.NoError(t, err)
	callsBefore := h.pipCalls(t)

	exports, err := h.p.Exports(tc)
	require.NoError(t, err)
	assert.NotEmpty(t, exports["SPARK_HOME"])
	assert.NotEmpty(t, exports["PYSPARK_PYTHON"])

	for _, call := range h.pipCalls(t)[len(callsBefore):] {
		assert.False(t, strings.HasPrefix(call, "install"), "env derivation must not install")
	}
}

// TestInspect verifies the presence checks before and after provisioning.
func TestInspect(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	tc := testToolchain()

	status, err := h.p.Inspect(h.project, tc)
	require.NoError(t, err)
	assert.True(t, status.PyenvFound)
	assert.False(t, status.VersionPresent)
	assert.False(t, status.VirtualenvPresent)
	assert.False(t, status.EntrypointPresent)
	assert.Empty(t, status.LocalPin)
	assert.False(t, status.Ready())

	_, err = h.p.Up(h.project, tc)
	require.NoError(t, err)

	status, err = h.p.Inspect(h.project, tc)
	require.NoError(t, err)
	assert.True(t, status.Ready())
	assert.Equal(t, "delta-dev", status.LocalPin)
}

// TestChildEnv verifies that exec children see the activation overlay,
// the derived exports, and the configured extra variables.
func TestChildEnv(t *testing.T) {
	tc := testToolchain()
	tc.ExtraEnv = map[string]string{"SPARK_LOCAL_IP": "127.0.0.1"}

	env := ChildEnv(tc, []string{"PYENV_VERSION=delta-dev"}, map[string]string{
		"SPARK_HOME":     "/site-packages/pyspark",
		"PYSPARK_PYTHON": "/envs/delta-dev/bin/python",
	})

	assert.Contains(t, env, "PYENV_VERSION=delta-dev")
	assert.Contains(t, env, "SPARK_HOME=/site-packages/pyspark")
	assert.Contains(t, env, "PYSPARK_PYTHON=/envs/delta-dev/bin/python")
	assert.Contains(t, env, "SPARK_LOCAL_IP=127.0.0.1")
}

package provision

import (
	"fmt"
	"os"

	"github.com/mmr-tortoise/sparkenv/internal/model"
	"github.com/mmr-tortoise/sparkenv/internal/pip"
	"github.com/mmr-tortoise/sparkenv/internal/pyenv"
)

// Provisioner executes provisioning runs against pyenv and pip.
//
// The fields are exported so tests can substitute stub-backed tool
// wrappers; production callers use New and leave them alone.
type Provisioner struct {
	// Pyenv wraps the pyenv CLI.
	Pyenv *pyenv.Manager

	// NewInstaller builds a pip wrapper bound to an activation overlay.
	NewInstaller func(activationEnv []string) *pip.Installer

	// Logf receives verbose progress lines. Never nil after New.
	Logf func(format string, args ...interface{})
}

// New creates a Provisioner backed by the real pyenv and pip binaries.
// logf may be nil, in which case progress lines are discarded.
func New(logf func(format string, args ...interface{})) *Provisioner {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Provisioner{
		Pyenv:        pyenv.NewManager(),
		NewInstaller: pip.NewInstaller,
		Logf:         logf,
	}
}

// Status describes what a read-only inspection of the directory found.
// It mirrors the presence checks of a provisioning run without executing
// any side effects.
type Status struct {
	// PyenvFound reports whether the pyenv binary resolves via PATH.
	PyenvFound bool `json:"pyenvFound"`

	// VersionPresent reports whether the target interpreter version is
	// installed (substring match).
	VersionPresent bool `json:"versionPresent"`

	// VirtualenvPresent reports whether the named virtualenv exists.
	VirtualenvPresent bool `json:"virtualenvPresent"`

	// EntrypointPresent reports whether the package entry point resolves
	// inside the virtualenv.
	EntrypointPresent bool `json:"entrypointPresent"`

	// LocalPin is the version or virtualenv the directory is pinned to,
	// empty when unpinned.
	LocalPin string `json:"localPin,omitempty"`
}

// Ready reports whether a provisioning run would have nothing to do.
func (s *Status) Ready() bool {
	return s.PyenvFound && s.VersionPresent && s.VirtualenvPresent && s.EntrypointPresent
}

// Up executes the full provisioning sequence for the given directory and
// toolchain and returns the per-step report.
//
// Interpreter and virtualenv steps are load-bearing: their failure aborts
// the run and the partial report accompanies the error. The package step
// and the export derivation are best-effort; their failures are recorded
// and the run continues, so the report's Exports may hold empty values.
func (p *Provisioner) Up(dir string, tc *model.Toolchain) (*model.ProvisionReport, error) {
	report := &model.ProvisionReport{
		Toolchain: *tc,
		Exports:   map[string]string{},
	}

	if !p.Pyenv.Installed() {
		return report, model.NewCLIError(model.ExitPyenvNotFound, "pyenv not found on PATH")
	}

	// Step 1: ensure the interpreter version is installed.
	hasVersion, err := p.Pyenv.HasVersion(tc.PythonVersion)
	if err != nil {
		return report, err
	}
	if hasVersion {
		p.Logf("python %s already installed", tc.PythonVersion)
		report.Steps = append(report.Steps, model.StepResult{
			Step:   model.StepEnsureVersion,
			Status: model.StepSkipped,
			Detail: fmt.Sprintf("python %s already installed", tc.PythonVersion),
		})
	} else {
		p.Logf("installing python %s (this can take a while)...", tc.PythonVersion)
		if err := p.Pyenv.InstallVersion(tc.PythonVersion); err != nil {
			report.Steps = append(report.Steps, failedStep(model.StepEnsureVersion, err))
			return report, err
		}
		report.Steps = append(report.Steps, model.StepResult{
			Step:   model.StepEnsureVersion,
			Status: model.StepPerformed,
			Detail: fmt.Sprintf("installed python %s", tc.PythonVersion),
		})
	}

	// Step 2: ensure the virtualenv exists.
	hasEnv, err := p.Pyenv.HasVirtualenv(tc.Virtualenv)
	if err != nil {
		return report, err
	}
	if hasEnv {
		p.Logf("virtualenv %s already exists", tc.Virtualenv)
		report.Steps = append(report.Steps, model.StepResult{
			Step:   model.StepEnsureVirtualenv,
			Status: model.StepSkipped,
			Detail: fmt.Sprintf("virtualenv %s already exists", tc.Virtualenv),
		})
	} else {
		p.Logf("creating virtualenv %s on python %s...", tc.Virtualenv, tc.PythonVersion)
		if err := p.Pyenv.CreateVirtualenv(tc.PythonVersion, tc.Virtualenv); err != nil {
			report.Steps = append(report.Steps, failedStep(model.StepEnsureVirtualenv, err))
			return report, err
		}
		report.Steps = append(report.Steps, model.StepResult{
			Step:   model.StepEnsureVirtualenv,
			Status: model.StepPerformed,
			Detail: fmt.Sprintf("created virtualenv %s", tc.Virtualenv),
		})
	}

	// Step 3: activate. The selection is an environment overlay carried
	// by every subsequent child process, nothing executes here.
	activation := p.Pyenv.ActivationEnv(tc.Virtualenv)
	report.Steps = append(report.Steps, model.StepResult{
		Step:   model.StepActivate,
		Status: model.StepPerformed,
		Detail: fmt.Sprintf("selected virtualenv %s for this run", tc.Virtualenv),
	})

	// Step 4: ensure the package. Best-effort: a failed install is
	// recorded and the run continues with whatever state pip left behind.
	installer := p.NewInstaller(activation)
	if _, err := p.Pyenv.Which(tc.Entrypoint, activation); err == nil {
		p.Logf("%s already on path, skipping install", tc.Entrypoint)
		report.Steps = append(report.Steps, model.StepResult{
			Step:   model.StepEnsurePackage,
			Status: model.StepSkipped,
			Detail: fmt.Sprintf("%s already installed", tc.Entrypoint),
		})
	} else {
		p.Logf("installing %s...", tc.Package)
		if err := installer.Install(tc.Package); err != nil {
			p.Logf("install of %s failed, continuing: %v", tc.Package, err)
			report.Steps = append(report.Steps, failedStep(model.StepEnsurePackage, err))
		} else {
			report.Steps = append(report.Steps, model.StepResult{
				Step:   model.StepEnsurePackage,
				Status: model.StepPerformed,
				Detail: fmt.Sprintf("installed %s", tc.Package),
			})
		}
	}

	// Step 5+6: derive and record the exports. Also best-effort — a
	// failed metadata query leaves the values empty.
	exports, deriveErr := p.deriveExports(tc, installer, activation)
	report.Exports = exports
	if deriveErr != nil {
		p.Logf("export derivation incomplete: %v", deriveErr)
		report.Steps = append(report.Steps, failedStep(model.StepDeriveExports, deriveErr))
	} else {
		report.Steps = append(report.Steps, model.StepResult{
			Step:   model.StepDeriveExports,
			Status: model.StepPerformed,
			Detail: fmt.Sprintf("%s=%s", tc.HomeVar, exports[tc.HomeVar]),
		})
	}

	// Step 7: pin the directory. Runs last so a broken run does not pin.
	if err := p.Pyenv.SetLocal(dir, tc.Virtualenv); err != nil {
		report.Steps = append(report.Steps, failedStep(model.StepPinLocal, err))
		return report, err
	}
	report.Steps = append(report.Steps, model.StepResult{
		Step:   model.StepPinLocal,
		Status: model.StepPerformed,
		Detail: fmt.Sprintf("pinned %s to %s", dir, tc.Virtualenv),
	})

	return report, nil
}

// Exports re-derives the export map without performing any installs.
// Used by `sparkenv env`, which must stay free of side effects.
func (p *Provisioner) Exports(tc *model.Toolchain) (map[string]string, error) {
	if !p.Pyenv.Installed() {
		return nil, model.NewCLIError(model.ExitPyenvNotFound, "pyenv not found on PATH")
	}
	activation := p.Pyenv.ActivationEnv(tc.Virtualenv)
	return p.deriveExports(tc, p.NewInstaller(activation), activation)
}

// deriveExports computes the two export values: the package installation
// root from pip metadata, and the interpreter path from `pyenv which`.
//
// Both lookups are attempted even if the first fails; the returned map
// always contains both keys so callers can emit deterministic output.
// The returned error is the first failure, for reporting only.
func (p *Provisioner) deriveExports(tc *model.Toolchain, installer *pip.Installer, activation []string) (map[string]string, error) {
	exports := map[string]string{
		tc.HomeVar:   "",
		tc.PythonVar: "",
	}

	var firstErr error

	meta, err := installer.Show(tc.Package)
	if err != nil {
		firstErr = err
	} else {
		exports[tc.HomeVar] = meta.Root()
	}

	python, err := p.Pyenv.Which("python", activation)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		exports[tc.PythonVar] = python
	}

	return exports, firstErr
}

// Inspect performs the read-only presence checks for `sparkenv status`.
func (p *Provisioner) Inspect(dir string, tc *model.Toolchain) (*Status, error) {
	status := &Status{PyenvFound: p.Pyenv.Installed()}
	if !status.PyenvFound {
		return status, nil
	}

	var err error
	status.VersionPresent, err = p.Pyenv.HasVersion(tc.PythonVersion)
	if err != nil {
		return nil, err
	}

	status.VirtualenvPresent, err = p.Pyenv.HasVirtualenv(tc.Virtualenv)
	if err != nil {
		return nil, err
	}

	if status.VirtualenvPresent {
		activation := p.Pyenv.ActivationEnv(tc.Virtualenv)
		if _, whichErr := p.Pyenv.Which(tc.Entrypoint, activation); whichErr == nil {
			status.EntrypointPresent = true
		}
	}

	status.LocalPin, err = p.Pyenv.Local(dir)
	if err != nil {
		return nil, err
	}

	return status, nil
}

// ChildEnv assembles the environment for a `sparkenv exec` child: the
// inherited environment plus the virtualenv activation, the two derived
// exports, and any extraEnv entries from the config.
func ChildEnv(tc *model.Toolchain, activation []string, exports map[string]string) []string {
	env := append(os.Environ(), activation...)
	for name, value := range exports {
		env = append(env, name+"="+value)
	}
	for name, value := range tc.ExtraEnv {
		env = append(env, name+"="+value)
	}
	return env
}

// failedStep builds the StepResult for a failed stage.
func failedStep(step model.Step, err error) model.StepResult {
	return model.StepResult{
		Step:   step,
		Status: model.StepFailed,
		Detail: err.Error(),
		Err:    err,
	}
}

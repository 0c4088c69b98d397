package pip

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/sparkenv/internal/model"
)

// Metadata holds the fields sparkenv needs from `pip show` output.
//
// Example output for a single distribution:
//
//	Name: pyspark
//	Version: 3.5.1
//	Summary: Apache Spark Python API
//	Location: /home/u/.pyenv/versions/delta-dev/lib/python3.11/site-packages
type Metadata struct {
	// Name is the distribution name as pip reports it.
	Name string

	// Version is the installed distribution version.
	Version string

	// Location is the site-packages directory containing the distribution.
	Location string
}

// Root returns the distribution's installation root: the Location joined
// with the distribution Name. For pyspark this is the directory the
// SPARK_HOME variable must point at.
//
// Returns an empty string when either field is missing, which is the
// degraded outcome of querying a package that failed to install.
func (m Metadata) Root() string {
	if m.Name == "" || m.Location == "" {
		return ""
	}
	return filepath.Join(m.Location, m.Name)
}

// Installer provides pip operations by invoking the pip CLI inside an
// activated virtualenv.
type Installer struct {
	// bin is the pip executable name or path. Defaults to "pip" and is
	// resolved through PATH (i.e. pyenv's shims) at invocation time.
	bin string

	// env is the activation overlay appended to the inherited environment
	// of every pip invocation, typically PYENV_VERSION=<virtualenv>.
	env []string
}

// NewInstaller creates an Installer that invokes "pip" from PATH with the
// given activation overlay (see pyenv.Manager.ActivationEnv).
func NewInstaller(activationEnv []string) *Installer {
	return &Installer{bin: "pip", env: activationEnv}
}

// NewInstallerWithBinary creates an Installer that invokes the given
// executable instead of "pip". Used by tests to point at a stub binary.
func NewInstallerWithBinary(bin string, activationEnv []string) *Installer {
	return &Installer{bin: bin, env: activationEnv}
}

// Install installs the named distribution from the default package index
// via `pip install <name>`. Download and build progress is pip's own
// output; we only capture the final status.
func (i *Installer) Install(name string) error {
	_, err := i.run("install", name)
	return err
}

// Show queries metadata for an installed distribution via
// `pip show <name>` and parses the fields sparkenv cares about.
//
// A distribution that is not installed makes pip exit non-zero; the
// error is returned and the zero Metadata yields an empty Root().
func (i *Installer) Show(name string) (Metadata, error) {
	output, err := i.run("show", name)
	if err != nil {
		return Metadata{}, err
	}
	return parseShowOutput(output), nil
}

// run executes a pip subcommand with the activation overlay applied.
//
// It captures stdout and stderr separately. On success it returns the
// stdout output. On failure it returns a model.CLIError with
// ExitGeneralError — pip failures are best-effort at the provisioning
// level, so no dedicated exit code exists for them.
func (i *Installer) run(args ...string) (string, error) {
	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command(i.bin, args...)
	if len(i.env) > 0 {
		cmd.Env = append(os.Environ(), i.env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("pip %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGeneralError, message, err)
	}

	return stdout.String(), nil
}

// parseShowOutput extracts the Name, Version and Location fields from
// `pip show` key-value output.
//
// Each matched line is split on whitespace and the second token is taken
// as the value. Values containing spaces are therefore truncated at the
// first space; Name, Version and Location are single tokens on any sane
// installation, and the truncation matches the original provisioning
// behavior this tool replaces.
func parseShowOutput(output string) Metadata {
	var meta Metadata
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "Name:":
			meta.Name = fields[1]
		case "Version:":
			meta.Version = fields[1]
		case "Location:":
			meta.Location = fields[1]
		}
	}
	return meta
}

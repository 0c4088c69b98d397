// Package pip wraps the pip package installer for the sparkenv CLI.
//
// pip is invoked via os/exec with the virtualenv activation overlay
// (PYENV_VERSION) applied, so "pip" resolves through pyenv's shims to the
// virtualenv's own pip. The package knows two operations:
//   - Install: best-effort installation of a distribution from the
//     default package index
//   - Show: querying installed-distribution metadata (Name, Version,
//     Location) from `pip show` key-value output
//
// Show's field extraction deliberately takes the second whitespace-
// delimited token of each matched line. That reproduces the original
// bootstrap script's awk '{print $2}' extraction, including its behavior
// on values containing spaces.
package pip

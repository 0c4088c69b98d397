package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/sparkenv/internal/model"
)

// Default values reproducing the original bootstrap script.
const (
	// DefaultPythonVersion is substring-matched against installed
	// versions, so any 3.11.x satisfies it.
	DefaultPythonVersion = "3.11"

	// DefaultPackage is the distribution ensured by the package step.
	DefaultPackage = "pyspark"

	// DefaultEntrypoint is the executable whose absence triggers the
	// package install.
	DefaultEntrypoint = "pyspark"

	// DefaultHomeVar receives the derived installation root.
	DefaultHomeVar = "SPARK_HOME"

	// DefaultPythonVar receives the active interpreter's binary path.
	DefaultPythonVar = "PYSPARK_PYTHON"
)

// fileNames lists the config file names probed in order. The first one
// found wins; multiple config files in one directory are not merged.
var fileNames = []string{".sparkenv.yaml", ".sparkenv.yml", ".sparkenv.json"}

// Load resolves the Toolchain for the given project directory.
//
// If explicitPath is non-empty (the --config flag), only that file is
// read and it must exist. Otherwise the directory is probed for the
// well-known file names, and an absent file yields pure defaults.
//
// Returns a CLIError with ExitConfigError for unreadable or invalid
// config files.
func Load(dir, explicitPath string) (*model.Toolchain, error) {
	path := explicitPath
	if path == "" {
		path = probe(dir)
	}

	tc := &model.Toolchain{}
	if path != "" {
		if err := parseFile(path, tc); err != nil {
			return nil, err
		}
	}

	applyDefaults(tc, dir)

	if err := tc.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid toolchain configuration", err)
	}
	return tc, nil
}

// probe returns the path of the first existing config file in dir,
// or an empty string if none exists.
func probe(dir string) string {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// parseFile reads and decodes a config file into tc, choosing the codec
// by file extension. JSON files may contain comments and trailing commas;
// they are normalized with jsonc.ToJSON before decoding.
func parseFile(path string, tc *model.Toolchain) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(jsonc.ToJSON(data), tc); err != nil {
			return model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to parse %s", path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, tc); err != nil {
			return model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to parse %s", path), err)
		}
	default:
		return model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("unsupported config file extension: %s", path))
	}
	return nil
}

// applyDefaults fills every unset field of tc with its default value.
// The virtualenv default is derived from the project directory name.
func applyDefaults(tc *model.Toolchain, dir string) {
	if tc.PythonVersion == "" {
		tc.PythonVersion = DefaultPythonVersion
	}
	if tc.Virtualenv == "" {
		tc.Virtualenv = sanitizeEnvName(filepath.Base(dir))
	}
	if tc.Package == "" {
		tc.Package = DefaultPackage
	}
	if tc.Entrypoint == "" {
		tc.Entrypoint = DefaultEntrypoint
	}
	if tc.HomeVar == "" {
		tc.HomeVar = DefaultHomeVar
	}
	if tc.PythonVar == "" {
		tc.PythonVar = DefaultPythonVar
	}
}

// sanitizeEnvName converts a directory name to a valid virtualenv name.
// Disallowed characters are replaced with hyphens, leading/trailing
// separators are trimmed, and an unusable result falls back to "sparkenv".
func sanitizeEnvName(name string) string {
	var result strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '-' || r == '_' || r == '.':
			result.WriteRune(r)
		default:
			result.WriteRune('-')
		}
	}

	sanitized := strings.Trim(result.String(), "-_.")
	if model.ValidateVirtualenvName(sanitized) != nil {
		return "sparkenv"
	}
	return sanitized
}

// Package config resolves the toolchain description for a project
// directory.
//
// The description comes from an optional config file in the directory:
// .sparkenv.yaml / .sparkenv.yml (YAML) or .sparkenv.json (JSONC — JSON
// with comments, stripped via github.com/tidwall/jsonc before parsing).
// An absent file is not an error; every field has a default that
// reproduces the original bootstrap behavior: Python 3.11, a virtualenv
// named after the directory, the pyspark distribution, and the
// SPARK_HOME / PYSPARK_PYTHON export pair.
package config

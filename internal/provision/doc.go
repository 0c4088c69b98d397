// Package provision implements the sequential provisioning run at the
// heart of sparkenv.
//
// A run walks the fixed sequence: ensure interpreter version, ensure
// virtualenv, activate, ensure package, derive exports, pin the
// directory. Every step is an independent presence check followed by a
// conditional side effect, executed strictly sequentially with no
// retries. Interpreter and virtualenv failures abort the run; package
// installation and metadata queries are best-effort — their failures are
// recorded in the report and the run continues, which can leave the
// derived exports empty.
package provision

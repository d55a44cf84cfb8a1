// Package storage provides file persistence for drf-pp.
//
// Artifacts (the downloaded program PDF and the trained model) are written with
// plain overwrite semantics: each run replaces the previous file. The data
// directory (default ~/.local/share/drf-pp/) holds last_run.json, a JSON summary
// of the most recent run.
package storage

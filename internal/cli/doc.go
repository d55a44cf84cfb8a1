// Package cli implements the command-line interface for drf-pp.
//
// The cli package provides the Cobra-based CLI with the run, acquire, train,
// seal and report commands. It loads configuration, sets up logging and
// metrics, coordinates the acquire and train packages, and records every
// invocation as a run report in the data directory.
package cli

// Package runid tags a node process's structured logs with a short,
// process-unique identifier, so output from several independently-run
// binaries in the same topology (a switch, a router, a blaster...) can be
// told apart when their logs land in the same terminal or file.
package runid

import (
	"log/slog"

	"github.com/google/uuid"
)

// New generates a run ID: the first 8 hex characters of a random UUIDv4.
// That's enough entropy to tell apart the handful of processes in one lab
// run without cluttering log lines with a full UUID.
func New() string {
	return uuid.NewString()[:8]
}

// Logger returns logger with a "run_id" and "node" attribute attached, the
// same way the rest of the module narrows a logger by component via
// logger.With(...).
func Logger(logger *slog.Logger, node string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("run_id", New(), "node", node)
}

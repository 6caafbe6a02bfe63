package envelope

import (
	"log/slog"
	"os"

	"github.com/reglet-dev/nativeabi/domain/ports"
)

// DefaultExitCode is the status the default terminator exits with
// (EX_SOFTWARE).
const DefaultExitCode = 70

// ExitTerminator logs the reason and exits the process.
type ExitTerminator struct {
	Logger *slog.Logger
	Code   int
}

// Terminate implements ports.Terminator. It does not return.
func (t ExitTerminator) Terminate(reason error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	code := t.Code
	if code == 0 {
		code = DefaultExitCode
	}
	logger.Error("envelope: cannot report failure, terminating", "error", reason, "exit_code", code)
	os.Exit(code)
}

var _ ports.Terminator = ExitTerminator{}

package host

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/exports"
)

// LogMessageName is the host export guests log through.
const LogMessageName = "log_message"

// logBundle returns the log_message export:
//
//	return_value_void* log_message(param_int level, const param_string* message);
//
// level follows slog: -4 debug, 0 info, 4 warn, 8 error.
func logBundle(logger *slog.Logger) exports.Bundle {
	logMessage := exports.VoidExport(LogMessageName,
		[]entities.Param{
			{Name: "level", Type: entities.ParamInt32},
			{Name: "message", Type: entities.ParamString},
		},
		func(ctx context.Context, args exports.Args) error {
			msg, err := args.String(1)
			if err != nil {
				return err
			}
			logger.Log(ctx, slog.Level(args.Int32(0)), msg, "source", "guest")
			return nil
		}).WithDoc("Writes message to the host log at the given slog level.")
	return exports.NewBundle(logMessage)
}

package log

import (
	"log/slog"

	"go.uber.org/zap"
)

// toField converts a slog attribute to a zap field. Empty attributes are
// dropped, as slog handlers are expected to do.
func toField(attr slog.Attr) (zap.Field, bool) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return zap.Skip(), false
	}

	switch attr.Value.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, attr.Value.String()), true
	case slog.KindInt64:
		return zap.Int64(attr.Key, attr.Value.Int64()), true
	case slog.KindUint64:
		return zap.Uint64(attr.Key, attr.Value.Uint64()), true
	case slog.KindBool:
		return zap.Bool(attr.Key, attr.Value.Bool()), true
	case slog.KindFloat64:
		return zap.Float64(attr.Key, attr.Value.Float64()), true
	case slog.KindTime:
		return zap.Time(attr.Key, attr.Value.Time()), true
	case slog.KindDuration:
		return zap.Duration(attr.Key, attr.Value.Duration()), true
	case slog.KindGroup:
		var fields []zap.Field
		for _, a := range attr.Value.Group() {
			if f, ok := toField(a); ok {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			return zap.Skip(), false
		}
		if attr.Key == "" {
			// Inline groups have no key; zap has no inline form, so keep
			// them under a placeholder rather than losing them.
			return zap.Dict("_", fields...), true
		}
		return zap.Dict(attr.Key, fields...), true
	default:
		v := attr.Value.Any()
		if err, ok := v.(error); ok {
			return zap.NamedError(attr.Key, err), true
		}
		return zap.Any(attr.Key, v), true
	}
}

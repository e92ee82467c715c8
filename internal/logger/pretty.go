// internal/logger/pretty.go
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// PrettyEncoder creates a user-friendly console encoder
func PrettyEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
}

func levelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(ColorCyan + "[DEBUG]" + ColorReset)
	case zapcore.InfoLevel:
		enc.AppendString(ColorGreen + "[INFO]" + ColorReset)
	case zapcore.WarnLevel:
		enc.AppendString(ColorYellow + "[WARN]" + ColorReset)
	case zapcore.ErrorLevel:
		enc.AppendString(ColorRed + "[ERROR]" + ColorReset)
	case zapcore.FatalLevel:
		enc.AppendString(ColorRed + ColorBold + "[FATAL]" + ColorReset)
	default:
		enc.AppendString("[" + level.CapitalString() + "]")
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// FormatMessage turns well-known engine messages into one readable line.
// Unknown messages are returned unchanged.
func FormatMessage(msg string, fields []zapcore.Field) string {
	switch {
	case strings.HasPrefix(msg, "Swap executed"):
		return fmt.Sprintf("%s✅ Swapped %s -> %s on %s%s",
			ColorGreen, field(fields, "amount_in"), field(fields, "amount_out"),
			shortenAddress(field(fields, "pool")), ColorReset)

	case strings.HasPrefix(msg, "Swap rejected"):
		return fmt.Sprintf("%s⛔ Swap rejected: %s%s", ColorYellow, field(fields, "code"), ColorReset)

	case strings.HasPrefix(msg, "Swap aborted"):
		return fmt.Sprintf("%s🛑 %s: %s%s", ColorRed+ColorBold, msg, field(fields, "error"), ColorReset)

	case strings.HasPrefix(msg, "Pool initialized"):
		return fmt.Sprintf("%s🏊 Pool %s initialized, fee %s bps%s",
			ColorBlue, shortenAddress(field(fields, "pool")), field(fields, "fee_bps"), ColorReset)

	case strings.HasPrefix(msg, "Pool lock changed"):
		return fmt.Sprintf("%s🔒 Pool %s locked=%s%s",
			ColorPurple, shortenAddress(field(fields, "pool")), field(fields, "locked"), ColorReset)

	default:
		return msg
	}
}

// field renders a field value the way the JSON encoder would print it.
func field(fields []zapcore.Field, key string) string {
	for _, f := range fields {
		if f.Key != key {
			continue
		}
		switch f.Type {
		case zapcore.StringType:
			return f.String
		case zapcore.BoolType:
			return fmt.Sprintf("%t", f.Integer == 1)
		case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
			return fmt.Sprintf("%d", uint64(f.Integer))
		case zapcore.Int64Type, zapcore.Int32Type:
			return fmt.Sprintf("%d", f.Integer)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				return err.Error()
			}
		}
		if f.Interface != nil {
			return fmt.Sprintf("%v", f.Interface)
		}
		return ""
	}
	return ""
}

func shortenAddress(addr string) string {
	if len(addr) > 8 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}

// prettyCore rewrites known messages with FormatMessage and drops their
// fields, so the console shows one short line per engine event.
type prettyCore struct {
	core   zapcore.Core
	fields []zapcore.Field
}

func (c *prettyCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *prettyCore) With(fields []zapcore.Field) zapcore.Core {
	merged := append(append([]zapcore.Field{}, c.fields...), fields...)
	return &prettyCore{core: c.core, fields: merged}
}

func (c *prettyCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *prettyCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := append(append([]zapcore.Field{}, c.fields...), fields...)
	formatted := FormatMessage(entry.Message, all)
	if formatted == entry.Message {
		return c.core.Write(entry, all)
	}
	entry.Message = formatted
	return c.core.Write(entry, nil)
}

func (c *prettyCore) Sync() error {
	return c.core.Sync()
}

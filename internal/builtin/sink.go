package builtin

import (
	"github.com/rs/zerolog"

	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/gwerrors"
	"github.com/fieldmesh/iiotgw/internal/plugin"
)

// LogSinkPluginName is the name AddNode uses to reference the built-in
// logging sink app.
const LogSinkPluginName = "logsink"

// LogSinkDescriptor describes the builtin app plugin whose instances log
// the messages handed to their Log method.
var LogSinkDescriptor = plugin.Descriptor{
	Name:   LogSinkPluginName,
	Kind:   plugin.App,
	Single: false,
	TagValidator: func(tag group.TagDef) *gwerrors.Error {
		return nil
	},
}

// logSinkInstance is the per-node handle for a log sink app. It has no
// DriverHandle worker of its own — app nodes receive messages over their
// pipe, and nothing in this repository reads a log sink's pipe or calls
// Log on its behalf.
type logSinkInstance struct {
	logger zerolog.Logger
}

// NewLogSinkFactory returns a factory bound to logger, for
// Manager.AddBuiltinPlugin — the builtin registration path needs a
// zero-argument constructor, so the logger is captured by closure instead
// of being part of the plugin ABI.
func NewLogSinkFactory(logger zerolog.Logger) func() (interface{}, error) {
	return func() (interface{}, error) {
		return &logSinkInstance{logger: logger.With().Str("plugin", LogSinkPluginName).Logger()}, nil
	}
}

// CloseLogSinkInstance is the log sink's destructor; nothing to release.
func CloseLogSinkInstance(interface{}) error { return nil }

// Log records one inbound message at Info level. cmd/gatewayd does not
// call it: no dispatcher in this repository forwards pipe messages to it.
func (l *logSinkInstance) Log(pipe string, msgType string, body []byte) {
	l.logger.Info().Str("pipe", pipe).Str("type", msgType).Int("bytes", len(body)).Msg("logsink: message received")
}

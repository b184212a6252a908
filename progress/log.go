package progress

import (
	"context"
	"sort"

	"github.com/rustyeddy/forecaster/pkg/logger"
)

// LogSink writes events at info level.
type LogSink struct {
	Log *logger.Logger
}

func (s LogSink) Emit(_ context.Context, ev Event) {
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]logger.Field, 0, len(keys)+1)
	fields = append(fields, logger.String("phase", ev.Phase))
	for _, k := range keys {
		fields = append(fields, logger.Any(k, ev.Fields[k]))
	}
	s.Log.Info("progress", fields...)
}

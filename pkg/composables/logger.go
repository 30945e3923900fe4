package composables

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/wholesale/pkg/constants"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context.
// A discarding logger is returned when none was set.
func UseLogger(ctx context.Context) *logrus.Entry {
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return nopLogger
	}
}

var nopLogger = func() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}()

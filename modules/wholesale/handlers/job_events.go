package handlers

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence"
	"github.com/iota-uz/wholesale/pkg/outbox"
)

// JobEventLogger is an outbox dispatcher that logs ended import jobs.
// Unknown topics are acknowledged and skipped.
func JobEventLogger(logger *logrus.Entry) outbox.Dispatcher {
	return outbox.DispatcherFunc(func(_ context.Context, msg outbox.DispatchedMessage) error {
		if msg.Meta.Topic != persistence.TopicJobEnded {
			logger.WithField("topic", msg.Meta.Topic).Debug("skipped outbox message")
			return nil
		}
		var ev persistence.JobEnded
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return errors.Wrapf(err, "decode %s event %s", msg.Meta.Topic, msg.Meta.EventID)
		}
		entry := logger.WithFields(logrus.Fields{
			"job":      ev.UUID,
			"action":   ev.Action,
			"status":   ev.Status,
			"imported": ev.ImportedRows,
			"errors":   ev.ErrorRows,
			"attempt":  msg.Meta.Attempts,
		})
		if ev.ImportErrors != "" {
			entry.WithField("import_errors", ev.ImportErrors).Warn("import job stopped")
			return nil
		}
		entry.Info("import job ended")
		return nil
	})
}

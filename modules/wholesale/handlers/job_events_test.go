package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/wholesale/modules/wholesale/infrastructure/persistence"
	"github.com/iota-uz/wholesale/pkg/outbox"
)

func TestJobEventLogger(t *testing.T) {
	t.Parallel()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	d := JobEventLogger(logrus.NewEntry(logger))
	ctx := context.Background()

	id := uuid.New()
	payload, err := json.Marshal(persistence.JobEnded{UUID: id, Action: "add", Status: "ended_ok", ImportedRows: 3})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(ctx, outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: persistence.TopicJobEnded},
		Payload: payload,
	}))
	require.Equal(t, "import job ended", hook.LastEntry().Message)
	require.Equal(t, id, hook.LastEntry().Data["job"])

	stopped, err := json.Marshal(persistence.JobEnded{UUID: id, Status: "ended_error", ImportErrors: "boom"})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(ctx, outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: persistence.TopicJobEnded},
		Payload: stopped,
	}))
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	require.NoError(t, d.Dispatch(ctx, outbox.DispatchedMessage{Meta: outbox.Meta{Topic: "other"}}))
	require.Equal(t, "skipped outbox message", hook.LastEntry().Message)

	err = d.Dispatch(ctx, outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: persistence.TopicJobEnded},
		Payload: json.RawMessage(`{`),
	})
	require.Error(t, err)
}

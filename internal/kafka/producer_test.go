package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func TestNotifyEncodesMessage(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, topic: "qr-notifications", log: logger.Discard()}

	err := p.Notify(context.Background(), models.Notification{
		Kind:    models.NotifyTicketDecided,
		Targets: []string{"agent-1"},
		Title:   "Ticket approved",
		Data:    map[string]string{"ticket_id": "PT-1"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ticket.decided", string(msg.Key))

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "PT-1", decoded.Data["ticket_id"])
	assert.False(t, decoded.At.IsZero())
}

func TestNotifyPropagatesWriterError(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("broker down")}, log: logger.Discard()}
	err := p.Notify(context.Background(), models.Notification{Kind: models.NotifyQRActivated})
	assert.EqualError(t, err, "broker down")
}

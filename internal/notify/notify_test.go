package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func sample(typ Type) Notification {
	return Notification{
		Type:         typ,
		To:           "owner@example.com",
		TicketID:     "t-1",
		TicketTitle:  "Barn roof",
		CustomerName: "Ada Lovelace",
		Status:       "Approved (Paid)",
		AssignedTo:   "Crew B",
	}
}

func TestRenderSubjects(t *testing.T) {
	cases := map[Type]string{
		TypeStatusUpdate: "Ticket Status Update - Barn roof",
		TypeAssignment:   "Ticket Assigned - Barn roof",
		TypeCompletion:   "Service Completed - Barn roof",
	}
	for typ, subject := range cases {
		msg, err := Render(sample(typ))
		require.NoError(t, err, typ)
		assert.Equal(t, subject, msg.Subject)
		assert.Equal(t, "owner@example.com", msg.To)
		assert.Contains(t, msg.HTML, "t-1")
	}
}

func TestRenderEscapesFields(t *testing.T) {
	n := sample(TypeStatusUpdate)
	n.CustomerName = "<script>alert(1)</script>"
	msg, err := Render(n)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderUnknownType(t *testing.T) {
	_, err := Render(sample("reminder"))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestDirectDispatch(t *testing.T) {
	m := &recordingMailer{}
	d := Direct{Mailer: m, From: "hub@example.com"}
	require.NoError(t, d.Dispatch(context.Background(), sample(TypeCompletion)))
	require.Len(t, m.sent, 1)
	assert.Equal(t, "hub@example.com", m.sent[0].From)

	err := d.Dispatch(context.Background(), Notification{Type: TypeStatusUpdate})
	require.Error(t, err)
	assert.Len(t, m.sent, 1)
}

func TestQueueEnqueues(t *testing.T) {
	mr := miniredis.RunT(t)
	q := NewQueue(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = q.Close() })

	require.NoError(t, q.Dispatch(context.Background(), sample(TypeStatusUpdate)))

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	n, err := rdb.LLen(context.Background(), "asynq:{"+QueueNotifications+"}:pending").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestQueueRejectsInvalid(t *testing.T) {
	mr := miniredis.RunT(t)
	q := NewQueue(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = q.Close() })
	require.ErrorIs(t, q.Dispatch(context.Background(), sample("bogus")), ErrUnknownType)
}

func TestSendHandler(t *testing.T) {
	m := &recordingMailer{}
	h := SendHandler{Mailer: m, From: "hub@example.com"}

	task, err := NewSendTask(sample(TypeStatusUpdate))
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, m.sent, 1)
	assert.Equal(t, "Ticket Status Update - Barn roof", m.sent[0].Subject)

	err = h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeSendNotification, []byte("{not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	m.err = errors.New("smtp down")
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "mail failures are retried")
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func sampleEvent() session.Event {
	return session.Event{
		Type:       session.EventConflictDetected,
		SessionID:  "s-1",
		EmployeeID: "emp-1",
		Date:       "2024-03-04",
		DeviceID:   "device-b",
		OccurredAt: time.Date(2024, 3, 4, 5, 20, 0, 0, time.UTC),
	}
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "presence.sessions.")

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "presence.sessions.conflict_detected", conn.subjects[0])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "conflict_detected", decoded["type"])
	assert.Equal(t, "emp-1", decoded["employee_id"])
}

func TestNATSPublisher_DefaultPrefix(t *testing.T) {
	p := NewNATSPublisher(&fakeConn{}, "")
	assert.Equal(t, "presence.sessions.session_created", p.Subject(session.EventSessionCreated))
}

func TestHubPublisher(t *testing.T) {
	hub := sse.NewHub(2)
	emp, unsubEmp := hub.Subscribe("emp-1")
	defer unsubEmp()
	admin, unsubAdmin := hub.Subscribe(sse.AdminTopic)
	defer unsubAdmin()

	require.NoError(t, NewHubPublisher(hub).Publish(context.Background(), sampleEvent()))

	got := <-emp
	assert.Equal(t, "conflict_detected", got.Name)
	got = <-admin
	assert.Equal(t, "conflict_detected", got.Name)
}

func TestMulti(t *testing.T) {
	ok := &fakeConn{}
	failing := &fakeConn{err: errors.New("nats: connection closed")}
	m := Multi{NewNATSPublisher(failing, "a"), Nop{}, NewNATSPublisher(ok, "b")}

	err := m.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "connection closed")
	assert.Len(t, ok.subjects, 1, "a failing publisher must not stop the others")
}

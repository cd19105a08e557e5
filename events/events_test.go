package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/trip"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestProgressSubject(t *testing.T) {
	assert.Equal(t, "semtrip.runs.abc.progress", ProgressSubject("abc"))
}

func TestPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, nil)

	err := p.Publish(Event{RunID: "r1", Status: "processing", Stage: trip.StagePlanning, Progress: 42, Day: 2})
	require.NoError(t, err)

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "semtrip.runs.r1.progress", conn.subjects[0])

	ev, err := Decode(conn.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, trip.StagePlanning, ev.Stage)
	assert.Equal(t, 42, ev.Progress)
	assert.Equal(t, 2, ev.Day)
	assert.False(t, ev.Timestamp.IsZero())
	assert.False(t, ev.Terminal())
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(Event{RunID: "r1"}))
	assert.NoError(t, NewPublisher(nil, nil).Publish(Event{RunID: "r1"}))
}

func TestPublisher_Errors(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("connection closed")}, nil)
	err := p.Publish(Event{RunID: "r1", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")

	err = NewPublisher(&fakeConn{}, nil).Publish(Event{})
	assert.Error(t, err)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}

func TestEvent_Terminal(t *testing.T) {
	assert.True(t, Event{Status: "completed"}.Terminal())
	assert.True(t, Event{Status: "failed"}.Terminal())
}

func TestConnect_EmptyURL(t *testing.T) {
	_, err := Connect("  ", nil)
	assert.Error(t, err)
}

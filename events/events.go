// Package events publishes run progress on NATS so that dashboards and the
// CLI can follow a plan while it is generated.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semtrip/trip"
)

// SubjectPrefix is the root of every progress subject.
const SubjectPrefix = "semtrip.runs"

// ProgressSubject returns the subject a run publishes its progress on.
func ProgressSubject(runID string) string {
	return fmt.Sprintf("%s.%s.progress", SubjectPrefix, runID)
}

// AllProgress matches the progress subject of every run.
const AllProgress = SubjectPrefix + ".*.progress"

// Event is one progress update of a run.
type Event struct {
	RunID     string     `json:"run_id"`
	Status    string     `json:"status"`
	Stage     trip.Stage `json:"stage"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Day       int        `json:"day,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Terminal returns true once the run has completed or failed.
func (e Event) Terminal() bool {
	return e.Status == "completed" || e.Status == "failed"
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher sends run events. A nil Publisher or one without a connection
// drops events silently.
type Publisher struct {
	conn   Conn
	logger *slog.Logger
}

// NewPublisher creates a publisher on conn.
func NewPublisher(conn Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish sends ev on the run's progress subject.
func (p *Publisher) Publish(ev Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if ev.RunID == "" {
		return errors.New("event without run id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(ProgressSubject(ev.RunID), data); err != nil {
		p.logger.Warn("Failed to publish run event", "run_id", ev.RunID, "stage", ev.Stage, "error", err)
		return fmt.Errorf("publish %s: %w", ProgressSubject(ev.RunID), err)
	}
	return nil
}

// Decode parses a message payload into an Event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Connect dials a NATS server with reconnect logging.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("semtrip"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// Watch delivers the events of one run (or of all runs when runID is empty)
// to fn until ctx is done or fn returns false.
func Watch(ctx context.Context, conn *nats.Conn, runID string, fn func(Event) bool) error {
	subject := AllProgress
	if runID != "" {
		subject = ProgressSubject(runID)
	}
	msgs := make(chan *nats.Msg, 64)
	sub, err := conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			ev, err := Decode(msg.Data)
			if err != nil {
				continue
			}
			if !fn(ev) {
				return nil
			}
		}
	}
}

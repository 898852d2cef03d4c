// Package publish announces validation results on NATS so dashboards and
// CI gates can follow a run as it progresses.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

// #region connect
// Connect dials a NATS server with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("hrv-parity"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
// #endregion connect

// #region messages
// RecordMessage is published once per validated record on <prefix>.record.
type RecordMessage struct {
	RunID     string              `json:"run_id"`
	ID        string              `json:"id"`
	Status    parity.RecordStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Failed    []hrv.Metric        `json:"failed,omitempty"`
}

// SummaryMessage is published once per run on <prefix>.summary.
type SummaryMessage struct {
	RunID   string         `json:"run_id"`
	Summary parity.Summary `json:"summary"`
}
// #endregion messages

// #region publisher
// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements parity.Observer. Publish failures are logged and never
// interrupt validation.
type Publisher struct {
	conn   Conn
	prefix string
	runID  string
}

var _ parity.Observer = (*Publisher)(nil)

// New creates a publisher for one run. prefix defaults to "hrv.parity".
func New(conn Conn, prefix, runID string) *Publisher {
	if prefix == "" {
		prefix = "hrv.parity"
	}
	return &Publisher{conn: conn, prefix: prefix, runID: runID}
}

// RecordSubject returns the subject record messages go to.
func (p *Publisher) RecordSubject() string { return p.prefix + ".record" }

// SummarySubject returns the subject the summary goes to.
func (p *Publisher) SummarySubject() string { return p.prefix + ".summary" }

func (p *Publisher) ObserveRecord(r parity.RecordResult) {
	msg := RecordMessage{
		RunID:     p.runID,
		ID:        r.ID,
		Status:    r.Status,
		Reason:    r.Reason,
		ErrorKind: r.ErrorKind,
	}
	for _, c := range r.Comparisons {
		if c.Outcome == parity.Fail {
			msg.Failed = append(msg.Failed, c.Metric)
		}
	}
	p.publish(p.RecordSubject(), msg)
}

func (p *Publisher) ObserveSummary(s parity.Summary) {
	p.publish(p.SummarySubject(), SummaryMessage{RunID: p.runID, Summary: s})
}

func (p *Publisher) publish(subject string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("[PUBLISH] marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, b); err != nil {
		log.Printf("[PUBLISH] publish %s: %v", subject, err)
	}
}
// #endregion publisher

package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"zdx/agent"
	"zdx/common"
)

// NatsSubject is the subject agent events are published to, one
// subject per thread so external subscribers (a web UI, a log
// shipper) can watch a single conversation.
func NatsSubject(threadID string) string {
	return fmt.Sprintf("zdx.thread.%s.events", threadID)
}

// NatsPublisher mirrors a thread's events onto a NATS subject. It's
// entirely optional: a broadcaster works with zero NatsPublishers
// attached, and a connection failure here never blocks the turn loop.
type NatsPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNatsPublisher dials the configured NATS server. Connection
// details come from ZDX_NATS_HOST/ZDX_NATS_PORT, defaulting to a
// local server, matching the host/port resolution other zdx
// subsystems use.
func NewNatsPublisher(threadID string) (*NatsPublisher, error) {
	nc, err := nats.Connect(fmt.Sprintf("nats://%s:%d", common.GetNatsServerHost(), common.GetNatsServerPort()))
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to NATS for event publishing")
		return nil, err
	}
	return &NatsPublisher{nc: nc, subject: NatsSubject(threadID)}, nil
}

// Publish marshals ev and publishes it to the thread's subject.
// Marshal or publish errors are logged, not returned: a publish
// failure must never abort the turn loop that produced the event.
func (p *NatsPublisher) Publish(ev agent.AgentEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal agent event for NATS publish")
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		log.Warn().Err(err).Str("subject", p.subject).Msg("failed to publish agent event to NATS")
	}
}

// Close closes the underlying connection (without draining it).
func (p *NatsPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

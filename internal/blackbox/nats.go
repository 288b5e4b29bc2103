package blackbox

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/asgard/freya/pkg/utils"
)

// SubjectBlackbox is the NATS subject frames publish on.
const SubjectBlackbox = "asgard.freya.blackbox"

// NATSPublisher ships frames onto the ASGARD event bus.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry

	mu        sync.Mutex
	published uint64
	dropped   uint64
}

// NewNATSPublisher connects to the bus and returns a publishing sink.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("freya-blackbox"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}

	p := &NATSPublisher{
		conn:   conn,
		logger: utils.Component("blackbox-nats"),
	}
	p.logger.WithField("url", url).Info("Blackbox NATS publisher connected")
	return p, nil
}

// Record implements Sink. Publish failures are counted, not
// propagated; the control path never sees bus trouble.
func (p *NATSPublisher) Record(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.Publish(SubjectBlackbox, data); err != nil {
		p.dropped++
		if p.dropped%1000 == 1 {
			p.logger.WithError(err).Warn("Blackbox publish failing")
		}
		return
	}
	p.published++
}

// Stats returns publish counters.
func (p *NATSPublisher) Stats() (published, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.dropped
}

// Close drains and closes the bus connection.
func (p *NATSPublisher) Close() {
	p.conn.Drain()
}

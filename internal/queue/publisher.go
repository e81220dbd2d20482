package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/model"
	"github.com/smukkama/pipeline-monitor/internal/protocol"
)

const (
	publishBuffer  = 128
	publishTimeout = 5 * time.Second
)

// Publisher sends keyed messages to a topic
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// AlertPublisher forwards ledger alerts to Kafka. OnAlert only queues; Run
// does the network writes.
type AlertPublisher struct {
	publisher Publisher
	queue     chan model.Alert
	logger    logrus.FieldLogger
}

func NewAlertPublisher(publisher Publisher, logger logrus.FieldLogger) *AlertPublisher {
	return &AlertPublisher{
		publisher: publisher,
		queue:     make(chan model.Alert, publishBuffer),
		logger:    logger.WithField("component", "alert-publisher"),
	}
}

func (p *AlertPublisher) OnSnapshot(*model.Snapshot) {}

func (p *AlertPublisher) OnAlert(alert model.Alert) {
	select {
	case p.queue <- alert:
	default:
		p.logger.WithField("alert", alert.ID).Warn("Publish queue full, dropping alert")
	}
}

// Run publishes queued alerts until ctx is done, then drains what is left
func (p *AlertPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case alert := <-p.queue:
			p.publish(ctx, alert)
		}
	}
}

func (p *AlertPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case alert := <-p.queue:
			p.publish(ctx, alert)
		default:
			return
		}
	}
}

func (p *AlertPublisher) publish(ctx context.Context, alert model.Alert) {
	event := protocol.FromAlert(alert)
	data, err := protocol.EncodeAlertEvent(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to encode alert event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.publisher.Publish(ctx, event.Key(), data); err != nil {
		p.logger.WithError(err).WithField("alert", alert.ID).Error("Failed to publish alert")
		return
	}
	p.logger.WithFields(logrus.Fields{
		"alert":    alert.ID,
		"segment":  alert.SegmentID,
		"severity": alert.Severity,
	}).Debug("Alert published")
}

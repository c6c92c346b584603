package feed

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// PublishMetrics is implemented by the metrics collector.
type PublishMetrics interface {
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
}

// Publisher sends position reports on behalf of devices, as the
// simulator does.
type Publisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	log         logrus.FieldLogger
	metrics     PublishMetrics
}

func NewPublisher(nc *nats.Conn, prefix string, logSubjects bool, log logrus.FieldLogger, m PublishMetrics) *Publisher {
	return &Publisher{nc: nc, prefix: prefix, logSubjects: logSubjects, log: log, metrics: m}
}

func (p *Publisher) Publish(busID string, msg GPSMessage) error {
	subject := Subject(p.prefix, busID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.WithField("subject", subject).Debug("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.PublishErrInc()
		} else {
			p.metrics.PublishedInc()
		}
	}
	return err
}

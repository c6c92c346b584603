package feed

import (
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/tracking"
)

// NATSSource reads one bus's position reports from a NATS subject.
type NATSSource struct {
	nc      *nats.Conn
	subject string
	log     logrus.FieldLogger
}

func NewNATSSource(nc *nats.Conn, prefix, busID string, log logrus.FieldLogger) *NATSSource {
	return &NATSSource{nc: nc, subject: Subject(prefix, busID), log: log}
}

func (s *NATSSource) Watch(onFix func(tracking.Fix), onErr func(error)) (func(), error) {
	sub, err := s.nc.Subscribe(s.subject, func(m *nats.Msg) {
		fix, err := decode(m.Data)
		if err != nil {
			onErr(err)
			return
		}
		onFix(fix)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("subject", s.subject).Debug("gps feed subscribed")
	return func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.log.WithError(err).WithField("subject", s.subject).Warn("gps feed unsubscribe")
		}
	}, nil
}

// NATSSources returns a factory that gives each trip a subscription on
// <prefix>.<busID>.
func NATSSources(nc *nats.Conn, prefix string, log logrus.FieldLogger) tracking.SourceFactory {
	return func(busID string, _ fleet.Route) (tracking.Source, error) {
		return NewNATSSource(nc, prefix, busID, log), nil
	}
}

// Package queue bridges the API server and runlet agents over NATS with
// channel-shaped send and receive adapters.
package queue

import (
	nats "github.com/nats-io/go-nats"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

func init() {
	logger = logrus.WithField("package", "queue")
}

// NATS is a message bus connection. Senders and receivers are plain
// channels so consumers don't couple to the NATS client.
type NATS struct {
	conn *nats.Conn
}

// NewNATS connects to the NATS server at url.
func NewNATS(url string) (*NATS, error) {
	logger.WithField("url", url).Debug("connecting to NATS")

	conn, err := nats.Connect(url)
	if err != nil {
		logger.WithError(err).Debug("unable to connect to NATS")
		return nil, err
	}

	return &NATS{conn: conn}, nil
}

// SenderOn returns a channel that publishes everything sent on it to the
// given subject. Closing the channel stops the pump.
func (q *NATS) SenderOn(subject string) chan<- []byte {
	logger := logger.WithField("subject", subject)

	ch := make(chan []byte)
	go func() {
		for msg := range ch {
			if err := q.conn.Publish(subject, msg); err != nil {
				// Messages carry run requests; a drop here means a run
				// that never starts, so it's worth an Error not a Debug.
				logger.WithError(err).Error("unable to publish message")
			}
		}
	}()

	return ch
}

// ReceiverOn returns a channel delivering every message published on the
// given subject, distributed across the named queue group so that exactly
// one agent picks up each run request.
func (q *NATS) ReceiverOn(subject, group string) (<-chan []byte, error) {
	logger := logger.WithFields(logrus.Fields{
		"subject": subject,
		"group":   group,
	})

	ch := make(chan []byte)
	_, err := q.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		ch <- msg.Data
	})
	if err != nil {
		logger.WithError(err).Debug("unable to subscribe")
		return nil, err
	}

	logger.Debug("subscribed")

	return ch, nil
}

// Close drains the connection.
func (q *NATS) Close() {
	q.conn.Close()
}

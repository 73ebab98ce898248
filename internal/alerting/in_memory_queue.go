package alerting

import (
	"context"
	"encoding/json"

	"waitcast/pkg/models"
)

type inMemoryAlert struct {
	queue   string
	payload []byte
}

func (a *inMemoryAlert) Type() string {
	return a.queue
}

func (a *inMemoryAlert) Payload() []byte {
	return a.payload
}

func (a *inMemoryAlert) Ack() error {
	return nil
}

func (a *inMemoryAlert) Nack() error {
	return nil
}

func (a *inMemoryAlert) Reject() error {
	return nil
}

// InMemoryQueue is a process-local alert queue for single binary deployments
// and tests.
type InMemoryQueue struct {
	alerts chan Alert
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		alerts: make(chan Alert, 100),
	}
}

func (q *InMemoryQueue) PublishTickAlert(ctx context.Context, payload models.TickAlertPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.alerts <- &inMemoryAlert{queue: AlertQueue, payload: data}

	return nil
}

func (q *InMemoryQueue) Alerts() <-chan Alert {
	return q.alerts
}

func (q *InMemoryQueue) Close() {
	if q.alerts != nil {
		close(q.alerts)
		q.alerts = nil
	}
}

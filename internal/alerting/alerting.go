package alerting

import (
	"context"
	"time"

	"waitcast/pkg/models"
)

const (
	AlertQueue      = "tick_alerts"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Alert interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishTickAlert(ctx context.Context, payload models.TickAlertPayload) error

	Close()
}

type Receiver interface {
	Alerts() <-chan Alert

	Close()
}

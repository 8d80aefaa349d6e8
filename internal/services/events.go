package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/accountd-io/authserver/internal/mq"
	"github.com/accountd-io/authserver/types"
)

// DefaultAccountCreatedChannel is the channel downstream consumers
// subscribe to for new accounts.
const DefaultAccountCreatedChannel = "account.created"

// AccountCreatedEvent is the payload published when an account is
// registered. Secret fields are never part of the event.
type AccountCreatedEvent struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Username  string       `json:"username"`
	Role      types.Role   `json:"role"`
	Status    types.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// EventPublisher publishes account lifecycle events over the message
// queue wrapper.
type EventPublisher struct {
	mq      *mq.MQ
	channel string
}

// NewEventPublisher constructs a publisher for the given channel. An
// empty channel falls back to DefaultAccountCreatedChannel.
func NewEventPublisher(queue *mq.MQ, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultAccountCreatedChannel
	}
	return &EventPublisher{mq: queue, channel: channel}
}

// AccountCreated publishes the creation event keyed by account id.
func (p *EventPublisher) AccountCreated(ctx context.Context, account types.Account) error {
	event := AccountCreatedEvent{
		ID:        account.ID,
		Email:     account.Email,
		Username:  account.Username,
		Role:      account.Role,
		Status:    account.Status,
		CreatedAt: account.CreatedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.mq.Publish(ctx, p.channel, data, map[string]string{"account_id": account.ID})
	return err
}

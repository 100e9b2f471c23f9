package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/recipesnap/apiserver/types"
)

// EventObserver records publish outcomes.
type EventObserver interface {
	ObserveEvent(eventType string, err error)
}

// EventPublisher encodes recipe events as JSON and publishes them on one
// channel.
type EventPublisher struct {
	backend  Backend
	channel  string
	observer EventObserver
}

func NewEventPublisher(backend Backend, channel string, observer EventObserver) *EventPublisher {
	if channel == "" {
		channel = "recipe-events"
	}
	return &EventPublisher{backend: backend, channel: channel, observer: observer}
}

func (p *EventPublisher) PublishRecipeEvent(ctx context.Context, event types.RecipeEvent) error {
	err := p.publish(ctx, event)
	if p.observer != nil {
		p.observer.ObserveEvent(string(event.Type), err)
	}
	return err
}

func (p *EventPublisher) publish(ctx context.Context, event types.RecipeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode recipe event: %w", err)
	}
	attrs := map[string]string{AttrEventType: string(event.Type)}
	if _, err := p.backend.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// SubscribeRecipeEvents decodes every message on the channel and passes it
// to fn. Undecodable messages are acknowledged and reported through onBad.
func SubscribeRecipeEvents(ctx context.Context, backend Backend, channel string, fn func(context.Context, types.RecipeEvent) error, onBad func(Message, error)) error {
	return backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		var event types.RecipeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			if onBad != nil {
				onBad(msg, err)
			}
			return nil
		}
		return fn(ctx, event)
	})
}

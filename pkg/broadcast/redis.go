package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fieldreport/pkg/logger"
)

type pubSubClient interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
	ChannelName(name string) string
}

// Redis carries messages over redis pub/sub so the agent and a separate
// sync worker process can talk.
type Redis struct {
	client  pubSubClient
	channel string
	logg    *logger.Logger
}

func NewRedis(client pubSubClient, name string, logg *logger.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if name == "" {
		name = DefaultChannel
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Redis{client: client, channel: client.ChannelName(name), logg: logg}, nil
}

func (r *Redis) Publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode sync message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, string(raw)); err != nil {
		return fmt.Errorf("publish sync message: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan Message, func(), error) {
	sub, err := r.client.Subscribe(ctx, r.channel)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan Message, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}

	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				msg, err := Decode([]byte(raw.Payload))
				if err != nil {
					r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "dropping malformed sync message")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					cancel()
					return
				case <-done:
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

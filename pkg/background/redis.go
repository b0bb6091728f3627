package background

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/broadcast"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/redis"
)

const (
	defaultRegistrationTTL = 10 * time.Minute
	defaultPollTimeout     = 5 * time.Second
)

type queueStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	RPush(ctx context.Context, key string, values ...any) error
	BLPop(ctx context.Context, timeout time.Duration, key string) (string, error)
	DrainQueueKey() string
	DrainRegistrationKey(tag string) string
}

// RedisDrainerParams configure a RedisDrainer.
type RedisDrainerParams struct {
	Store           queueStore
	Channel         broadcast.Channel
	Logger          *logger.Logger
	RegistrationTTL time.Duration
	PollTimeout     time.Duration
}

// RedisDrainer hands drain requests to a separate sync worker process. The
// agent side registers and publishes; the worker side runs Run.
type RedisDrainer struct {
	store   queueStore
	channel broadcast.Channel
	logg    *logger.Logger
	ttl     time.Duration
	poll    time.Duration
}

func NewRedisDrainer(params RedisDrainerParams) (*RedisDrainer, error) {
	if params.Store == nil {
		return nil, errors.New("redis store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.RegistrationTTL
	if ttl <= 0 {
		ttl = defaultRegistrationTTL
	}
	poll := params.PollTimeout
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	return &RedisDrainer{store: params.Store, channel: params.Channel, logg: logg, ttl: ttl, poll: poll}, nil
}

// ScheduleBackgroundDrain queues tag once; repeated registrations of the same
// tag are no-ops until the worker picks it up.
func (d *RedisDrainer) ScheduleBackgroundDrain(ctx context.Context, tag string) error {
	if tag == "" {
		return errors.New("drain tag required")
	}
	fresh, err := d.store.SetNX(ctx, d.store.DrainRegistrationKey(tag), time.Now().UTC().Format(time.RFC3339), d.ttl)
	if err != nil {
		return fmt.Errorf("register drain %s: %w", tag, err)
	}
	if !fresh {
		return nil
	}
	if err := d.store.RPush(ctx, d.store.DrainQueueKey(), tag); err != nil {
		_ = d.store.Del(ctx, d.store.DrainRegistrationKey(tag))
		return fmt.Errorf("queue drain %s: %w", tag, err)
	}
	return nil
}

func (d *RedisDrainer) RequestImmediateDrain(ctx context.Context) error {
	if d.channel == nil {
		return ErrUnavailable
	}
	return d.channel.Publish(ctx, broadcast.ProcessOutbox())
}

// Next waits up to the poll timeout for a registered tag. It returns an empty
// tag when nothing arrived.
func (d *RedisDrainer) Next(ctx context.Context) (string, error) {
	tag, err := d.store.BLPop(ctx, d.poll, d.store.DrainQueueKey())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if err := d.store.Del(ctx, d.store.DrainRegistrationKey(tag)); err != nil {
		d.logg.Warn(d.logg.WithField(ctx, "tag", tag), "failed to clear drain registration")
	}
	return tag, nil
}

// Run is the worker loop: it runs pass for every registered tag and every
// PROCESS_OUTBOX message until ctx is done.
func (d *RedisDrainer) Run(ctx context.Context, pass PassFunc) error {
	if pass == nil {
		return errors.New("pass func required")
	}
	signal := newWake()

	if d.channel != nil {
		msgs, cancel, err := d.channel.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe sync channel: %w", err)
		}
		defer cancel()
		go func() {
			for msg := range msgs {
				if msg.Type == enums.SyncMessageProcessOutbox {
					signal.notify()
				}
			}
		}()
	}

	go func() {
		for ctx.Err() == nil {
			tag, err := d.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logg.Error(ctx, "drain queue poll failed", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(d.poll):
				}
				continue
			}
			if tag != "" {
				signal.notify()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
			if err := pass(ctx); err != nil && ctx.Err() == nil {
				d.logg.Error(ctx, "background drain pass failed", err)
			}
		}
	}
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/domain/shared"
	rediscache "github.com/studyhub/groupmatch/internal/infrastructure/persistence/redis"
)

// DefaultChannel is the Pub/Sub channel lifecycle events are forwarded to.
const DefaultChannel = "groupmatch:events"

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus publishes locally and forwards each event to Redis. Events
// from other instances arriving on the channel are dispatched to local
// handlers; our own are skipped since they were already handled.
type RedisEventBus struct {
	cache      *rediscache.Cache
	local      *InMemoryEventBus
	channel    string
	instanceID string
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// RedisBusConfig contains configuration for RedisEventBus.
type RedisBusConfig struct {
	Cache *rediscache.Cache

	// Channel defaults to DefaultChannel.
	Channel string

	// InstanceID defaults to a random UUID.
	InstanceID string

	Local  Config
	Logger *zap.Logger
}

// NewRedisEventBus subscribes to the channel and starts the receive loop.
func NewRedisEventBus(ctx context.Context, cfg RedisBusConfig) (*RedisEventBus, error) {
	if cfg.Cache == nil {
		return nil, errors.New("redis cache is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = cfg.Logger
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := &RedisEventBus{
		cache:      cfg.Cache,
		local:      NewInMemoryEventBus(cfg.Local),
		channel:    cfg.Channel,
		instanceID: cfg.InstanceID,
		logger:     cfg.Logger.Named("redis_eventbus"),
		ctx:        loopCtx,
		cancel:     cancel,
	}

	ps := cfg.Cache.Subscribe(loopCtx, cfg.Channel)
	// wait for the subscription confirmation so nothing published after
	// construction is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Channel, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				b.handleRemote([]byte(msg.Payload))
			}
		}
	}()

	return b, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish forwards the event to Redis and dispatches it locally. A Redis
// failure is logged; local handlers still run.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := Encode(event, b.instanceID)
	if err != nil {
		return err
	}
	if err := b.cache.Publish(b.ctx, b.channel, data); err != nil {
		b.logger.Error("failed to publish to redis",
			zap.String("event_type", string(event.EventType())),
			zap.Error(err))
	}
	return b.local.Publish(event)
}

func (b *RedisEventBus) handleRemote(data []byte) {
	event, source, err := Decode(data)
	if err != nil {
		b.logger.Error("failed to decode remote event", zap.Error(err))
		return
	}
	if source == b.instanceID {
		return
	}
	if err := b.local.Publish(event); err != nil {
		b.logger.Error("failed to dispatch remote event", zap.Error(err))
	}
}

// Close stops the receive loop and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.local.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type wireEnvelope struct {
	shared.EventEnvelope
	Source string `json:"source"`
}

// Encode serializes an event into the channel's JSON envelope.
func Encode(event shared.Event, source string) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := wireEnvelope{
		EventEnvelope: shared.EventEnvelope{
			ID:          uuid.NewString(),
			Type:        event.EventType(),
			AggregateID: event.AggregateID(),
			Timestamp:   event.OccurredAt(),
			Version:     1,
			Payload:     payload,
		},
		Source: source,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (shared.Event, string, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, "", errors.New("envelope has no event type")
	}
	payload := map[string]interface{}{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, "", fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &remoteEvent{
		eventType:   env.Type,
		aggregateID: env.AggregateID,
		occurredAt:  env.Timestamp,
		payload:     payload,
	}, env.Source, nil
}

// remoteEvent is an event received from another instance.
type remoteEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *remoteEvent) EventType() shared.EventType { return e.eventType }

func (e *remoteEvent) AggregateID() string { return e.aggregateID }

func (e *remoteEvent) OccurredAt() time.Time { return e.occurredAt }

func (e *remoteEvent) Payload() map[string]interface{} { return e.payload }

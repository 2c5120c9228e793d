package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultLedgerChannel = "doubles-rating:ledger:events"
	EventMatchAppended   = "match_appended"
)

// LedgerEvent 원장 변경 이벤트
type LedgerEvent struct {
	Type       string    `json:"type"`
	Seq        int64     `json:"seq"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// LedgerSync Redis Pub/Sub 기반 인스턴스 간 원장 동기화
//
// Every instance publishes the seq of each record it appends and reacts to the
// appends of the others. Events carry no record data; receivers read the
// records from the shared store.
type LedgerSync struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string // 인스턴스 고유 ID
	channel    string
}

// NewLedgerSync 원장 동기화 생성
func NewLedgerSync(client *redis.Client, logger *zap.Logger) *LedgerSync {
	return &LedgerSync{
		client:     client,
		logger:     logger,
		instanceID: uuid.New().String(),
		channel:    DefaultLedgerChannel,
	}
}

// WithChannel returns a copy of s that uses channel instead of the default.
func (s *LedgerSync) WithChannel(channel string) *LedgerSync {
	out := *s
	out.channel = channel
	return &out
}

func (s *LedgerSync) InstanceID() string {
	return s.instanceID
}

// Start 이벤트 수신 시작. Blocks until ctx ends; events published by this
// instance are skipped.
func (s *LedgerSync) Start(ctx context.Context, handler func(event LedgerEvent) error) error {
	// Redis Pub/Sub 구독
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.logger.Info("Ledger sync started",
		zap.String("instance_id", s.instanceID),
		zap.String("channel", s.channel))

	// 메시지 수신 루프
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event LedgerEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Error("Failed to unmarshal event", zap.Error(err))
				continue
			}
			if event.InstanceID == s.instanceID {
				continue
			}

			s.logger.Debug("Received ledger event",
				zap.String("type", event.Type),
				zap.Int64("seq", event.Seq),
				zap.String("from", event.InstanceID))

			if err := handler(event); err != nil {
				s.logger.Error("Failed to handle event", zap.Error(err))
			}

		case <-ctx.Done():
			s.logger.Info("Ledger sync stopped")
			return ctx.Err()
		}
	}
}

// Publish 이벤트 발행
func (s *LedgerSync) Publish(ctx context.Context, event LedgerEvent) error {
	event.InstanceID = s.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NotifyAppended 새 기록 추가 알림
func (s *LedgerSync) NotifyAppended(ctx context.Context, seq int64) error {
	return s.Publish(ctx, LedgerEvent{Type: EventMatchAppended, Seq: seq})
}

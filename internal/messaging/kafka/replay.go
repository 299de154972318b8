package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// ErrNotDeadLetter: сообщение в DLQ не содержит исходного события outbox.
var ErrNotDeadLetter = errors.New("message is not an outbox dead letter")

// OffsetReader отдаёт партиции и границы offset'ов; реализуется sarama.Client.
type OffsetReader interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type PartitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionOpener открывает чтение партиции с заданного offset.
type PartitionOpener interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionReader, error)
}

// ConsumerOpener адаптирует sarama.Consumer к PartitionOpener.
type ConsumerOpener struct {
	Consumer sarama.Consumer
}

func (o ConsumerOpener) ConsumePartition(topic string, partition int32, offset int64) (PartitionReader, error) {
	return o.Consumer.ConsumePartition(topic, partition, offset)
}

// ReplayOptions задаёт параметры повторной публикации из DLQ.
type ReplayOptions struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	FromNewest  bool
	IdleTimeout time.Duration
	// Producer == nil означает dry-run: кандидаты только логируются.
	Producer *Producer
	Logger   *log.Entry
}

// ReplayStats считает итог прогона.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer переносит сообщения из DLQ обратно в topic событий.
type Replayer struct {
	offsets OffsetReader
	opener  PartitionOpener
	opts    ReplayOptions
}

// NewReplayer создаёт Replayer, подставляя значения по умолчанию.
func NewReplayer(offsets OffsetReader, opener PartitionOpener, opts ReplayOptions) *Replayer {
	if opts.SourceTopic == "" {
		opts.SourceTopic = TopicDeadLetterQueue
	}
	if opts.TargetTopic == "" {
		opts.TargetTopic = TopicMarketplaceEvents
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultReplayLimit
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{offsets: offsets, opener: opener, opts: opts}
}

// Run читает не больше Limit сообщений по всем партициям DLQ.
func (r *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	var total ReplayStats
	if r.offsets == nil || r.opener == nil {
		return total, fmt.Errorf("kafka offsets and consumer are required")
	}

	partitions, err := r.offsets.Partitions(r.opts.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.opts.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.opts.Limit - total.Processed
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.opts.Logger.WithFields(log.Fields{
		"dry_run":   r.opts.Producer == nil,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats
	topic := r.opts.SourceTopic

	oldest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.opts.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	reader, err := r.opener.ConsumePartition(topic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(r.opts.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-reader.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.opts.IdleTimeout)

			stats.Processed++
			if err := r.replay(msg); err != nil {
				if errors.Is(err, ErrNotDeadLetter) {
					stats.Skipped++
					r.opts.Logger.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip unsupported dlq message")
					continue
				}
				return stats, err
			}
			stats.Replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *Replayer) replay(msg *sarama.ConsumerMessage) error {
	envelope, err := DecodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}
	if r.opts.Producer == nil {
		r.opts.Logger.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": r.opts.TargetTopic,
			"outbox_id":    envelope.ID,
			"event_type":   envelope.EventType,
		}).Info("dlq replay candidate")
		return nil
	}
	if err := r.opts.Producer.PublishEnvelope(r.opts.TargetTopic, envelope); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	return nil
}

// DecodeDeadLetter восстанавливает исходный конверт события из сообщения DLQ.
func DecodeDeadLetter(value []byte) (Envelope, error) {
	var outer Envelope
	if err := json.Unmarshal(value, &outer); err != nil || len(outer.Payload) == 0 {
		return Envelope{}, ErrNotDeadLetter
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(outer.Payload, &letter); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode payload: %v", ErrNotDeadLetter, err)
	}
	if len(letter.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: original payload is missing", ErrNotDeadLetter)
	}

	return Envelope{
		ID:            firstNonEmpty(letter.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, outer.EventType),
		Payload:       letter.Payload,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func deadLetter(t *testing.T, outboxID string) []byte {
	t.Helper()
	inner, err := json.Marshal(domain.DeadLetter{
		OutboxID:      outboxID,
		AggregateType: "product",
		AggregateID:   "product-" + outboxID,
		EventType:     "product.updated",
		Payload:       json.RawMessage(`{"price":"10.00"}`),
		Attempts:      3,
		PublishError:  "broker down",
	})
	require.NoError(t, err)
	outer, err := json.Marshal(Envelope{
		ID:          outboxID,
		AggregateID: "product-" + outboxID,
		EventType:   "product.updated",
		Payload:     inner,
	})
	require.NoError(t, err)
	return outer
}

func TestDecodeDeadLetter(t *testing.T) {
	t.Parallel()

	envelope, err := DecodeDeadLetter(deadLetter(t, "m-1"))
	require.NoError(t, err)
	assert.Equal(t, "m-1", envelope.ID)
	assert.Equal(t, "product", envelope.AggregateType)
	assert.Equal(t, "product-m-1", envelope.Key())
	assert.JSONEq(t, `{"price":"10.00"}`, string(envelope.Payload))

	tests := map[string][]byte{
		"not json":          []byte("garbage"),
		"no payload":        []byte(`{"id":"m-2"}`),
		"payload not dlq":   []byte(`{"id":"m-3","payload":"text"}`),
		"original is empty": []byte(`{"id":"m-4","payload":{"outbox_id":"m-4"}}`),
	}
	for name, raw := range tests {
		_, err := DecodeDeadLetter(raw)
		assert.ErrorIs(t, err, ErrNotDeadLetter, name)
	}
}

func TestReplayer_ExecuteRepublishesDeadLetters(t *testing.T) {
	t.Parallel()

	reader := newStubReader(
		&sarama.ConsumerMessage{Offset: 0, Value: deadLetter(t, "m-1")},
		&sarama.ConsumerMessage{Offset: 1, Value: []byte("garbage")},
		&sarama.ConsumerMessage{Offset: 2, Value: deadLetter(t, "m-2")},
	)
	offsets := &stubOffsets{partitions: []int32{0}, oldest: 0, newest: 3}

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()
	mockProducer.ExpectSendMessageAndSucceed()

	replayer := NewReplayer(offsets, stubOpener{reader: reader}, ReplayOptions{
		Producer:    NewProducerFromSync(mockProducer),
		IdleTimeout: time.Second,
	})
	stats, err := replayer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Processed: 3, Replayed: 2, Skipped: 1}, stats)
	require.NoError(t, mockProducer.Close())
}

func TestReplayer_DryRunRespectsLimit(t *testing.T) {
	t.Parallel()

	reader := newStubReader(
		&sarama.ConsumerMessage{Offset: 5, Value: deadLetter(t, "m-1")},
		&sarama.ConsumerMessage{Offset: 6, Value: deadLetter(t, "m-2")},
	)
	offsets := &stubOffsets{partitions: []int32{0}, oldest: 5, newest: 7}
	opener := stubOpener{reader: reader}

	stats, err := NewReplayer(offsets, opener, ReplayOptions{Limit: 1, IdleTimeout: time.Second}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Processed: 1, Replayed: 1}, stats)
}

func TestReplayer_FromNewestStartsNearEnd(t *testing.T) {
	t.Parallel()

	reader := newStubReader(&sarama.ConsumerMessage{Offset: 9, Value: deadLetter(t, "m-9")})
	offsets := &stubOffsets{partitions: []int32{0}, oldest: 0, newest: 10}
	opener := &recordingOpener{reader: reader}

	_, err := NewReplayer(offsets, opener, ReplayOptions{Limit: 1, FromNewest: true, IdleTimeout: time.Second}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), opener.offset)
}

func TestReplayer_EmptyPartitionAndErrors(t *testing.T) {
	t.Parallel()

	stats, err := NewReplayer(&stubOffsets{partitions: []int32{0}, oldest: 4, newest: 4}, stubOpener{}, ReplayOptions{}).
		Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)

	_, err = NewReplayer(&stubOffsets{err: errors.New("metadata unavailable")}, stubOpener{}, ReplayOptions{}).
		Run(context.Background())
	assert.Error(t, err)

	_, err = NewReplayer(nil, nil, ReplayOptions{}).Run(context.Background())
	assert.Error(t, err)
}

func TestReplayer_IdleTimeoutStopsPartition(t *testing.T) {
	t.Parallel()

	offsets := &stubOffsets{partitions: []int32{0}, oldest: 0, newest: 5}
	stats, err := NewReplayer(offsets, stubOpener{reader: newStubReader()}, ReplayOptions{IdleTimeout: 20 * time.Millisecond}).
		Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
}

type stubOffsets struct {
	partitions []int32
	oldest     int64
	newest     int64
	err        error
}

func (s *stubOffsets) Partitions(string) ([]int32, error) {
	return s.partitions, s.err
}

func (s *stubOffsets) GetOffset(_ string, _ int32, when int64) (int64, error) {
	if when == sarama.OffsetOldest {
		return s.oldest, nil
	}
	return s.newest, nil
}

type stubReader struct {
	messages chan *sarama.ConsumerMessage
	errs     chan *sarama.ConsumerError
}

func newStubReader(msgs ...*sarama.ConsumerMessage) *stubReader {
	r := &stubReader{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errs:     make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *stubReader) Messages() <-chan *sarama.ConsumerMessage { return r.messages }
func (r *stubReader) Errors() <-chan *sarama.ConsumerError     { return r.errs }
func (r *stubReader) Close() error                             { return nil }

type stubOpener struct {
	reader *stubReader
}

func (o stubOpener) ConsumePartition(string, int32, int64) (PartitionReader, error) {
	if o.reader == nil {
		return nil, errors.New("unexpected consume")
	}
	return o.reader, nil
}

type recordingOpener struct {
	reader *stubReader
	offset int64
}

func (o *recordingOpener) ConsumePartition(_ string, _ int32, offset int64) (PartitionReader, error) {
	o.offset = offset
	return o.reader, nil
}

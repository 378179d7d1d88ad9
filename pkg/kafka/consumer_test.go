package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func newTestConsumer(r messageReader, h MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: h,
	}
}

func TestConsumerStopsOnHandlerError(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	calls := 0
	c := newTestConsumer(r, func(context.Context, []byte, []byte) error {
		calls++
		if calls == 2 {
			return errors.New("store down")
		}
		return nil
	})

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 2")
	assert.Equal(t, []int64{1}, r.committed)
	assert.Len(t, r.msgs, 1)
}

func TestConsumerStopsQuietlyOnCancel(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{{Offset: 7}}}
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestConsumer(r, func(context.Context, []byte, []byte) error {
		cancel()
		return context.Canceled
	})

	assert.NoError(t, c.Start(ctx))
	assert.Empty(t, r.committed)
}

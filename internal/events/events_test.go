package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/kafka"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	fail   int
	calls  int
	sent   []kafka.Event
	closed bool
}

func (f *fakeSender) Publish(_ context.Context, event kafka.Event) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestFinishRecordsOutcome(t *testing.T) {
	ev := NewRunEvent("", "evaluate")
	ev.Input("pred", "pred.txt")
	ev.Input("weights", "")
	ev.Output("report")
	require.NoError(t, ev.Finish(map[string]float64{"P@1": 66.67}, nil))

	assert.Equal(t, StatusSucceeded, ev.Status)
	assert.Equal(t, 0, ev.ExitCode)
	assert.Equal(t, map[string]string{"pred": "pred.txt"}, ev.Inputs)
	assert.JSONEq(t, `{"P@1":66.67}`, string(ev.Result))
	assert.False(t, ev.FinishedAt.Before(ev.StartedAt))
	require.NoError(t, ev.Validate())

	failed := NewRunEvent("", "merge")
	require.NoError(t, failed.Finish(nil, xerrors.New(xerrors.ErrFormat, "bad shard")))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, xerrors.ExitFormat, failed.ExitCode)
	assert.Contains(t, failed.Error, "bad shard")
	assert.Nil(t, failed.Result)
}

func TestDecodeRoundTrip(t *testing.T) {
	ev := NewRunEvent("", "tfidf")
	require.NoError(t, ev.Finish(nil, nil))
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "tfidf", got.Stage)
	assert.True(t, ev.StartedAt.Equal(got.StartedAt))
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"garbage":    `{`,
		"bad id":     `{"id":"run-1","stage":"merge","status":"succeeded"}`,
		"no stage":   `{"id":"7b4f6e38-3c43-4a52-9a0a-0c6f0b1f2d11","status":"succeeded"}`,
		"bad status": `{"id":"7b4f6e38-3c43-4a52-9a0a-0c6f0b1f2d11","stage":"merge","status":"done"}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestKafkaPublisherRetries(t *testing.T) {
	s := &fakeSender{fail: 2}
	p := newKafkaPublisher(s, time.Second)
	p.retry.InitialDelay = time.Millisecond
	p.retry.MaxDelay = time.Millisecond

	ev := NewRunEvent("", "propensity")
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.Equal(t, 3, s.calls)
	require.Len(t, s.sent, 1)
	assert.Equal(t, ev.ID, s.sent[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, s.closed)
}

func TestKafkaPublisherGivesUp(t *testing.T) {
	s := &fakeSender{fail: 10}
	p := newKafkaPublisher(s, time.Second)
	p.retry.InitialDelay = time.Millisecond
	p.retry.MaxDelay = time.Millisecond

	err := p.Publish(context.Background(), NewRunEvent("", "merge"))
	require.Error(t, err)
	assert.Equal(t, 3, s.calls)
}

func TestNewDisabledIsNoop(t *testing.T) {
	p := New(config.KafkaConfig{})
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), NewRunEvent("", "merge")))
	assert.NoError(t, p.Close())
}

package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves pending messages, then calls drained and blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	fetchErr  error
	commitErr error
	drained   func()
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErr != nil {
		f.mu.Unlock()
		return kafka.Message{}, f.fetchErr
	}
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	if f.drained != nil {
		f.drained()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func newTestConsumer(reader *fakeReader) *Consumer {
	c := newConsumerWithReader(reader, nil)
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func TestConsumer_CommitsOnlyAfterHandlerSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		pending: []kafka.Message{{Topic: "failures", Offset: 7}, {Topic: "failures", Offset: 8}},
		drained: cancel,
	}
	c := newTestConsumer(reader)

	var (
		calls          int
		seenBeforeFail []int64
	)
	err := c.Consume(ctx, func(_ context.Context, msg kafka.Message) error {
		calls++
		if msg.Offset == 7 && calls == 1 {
			seenBeforeFail = reader.committedOffsets()
			return errors.New("postgres is down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Empty(t, seenBeforeFail)
	assert.Equal(t, []int64{7, 8}, reader.committedOffsets())
}

func TestConsumer_FailingHandlerNeverCommits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	reader := &fakeReader{pending: []kafka.Message{{Offset: 1}}}
	c := newTestConsumer(reader)

	calls := 0
	err := c.Consume(ctx, func(context.Context, kafka.Message) error {
		calls++
		return errors.New("postgres is down")
	})

	assert.NoError(t, err, "stopping mid-retry is a clean stop")
	assert.Greater(t, calls, 1)
	assert.Empty(t, reader.committedOffsets())
}

func TestConsumer_FetchAndCommitErrors(t *testing.T) {
	fetchFails := &fakeReader{fetchErr: errors.New("broker gone")}
	err := newTestConsumer(fetchFails).Consume(context.Background(), func(context.Context, kafka.Message) error { return nil })
	assert.ErrorContains(t, err, "broker gone")

	commitFails := &fakeReader{pending: []kafka.Message{{Offset: 3}}, commitErr: errors.New("rebalance in progress")}
	err = newTestConsumer(commitFails).Consume(context.Background(), func(context.Context, kafka.Message) error { return nil })
	assert.ErrorContains(t, err, "commit offset 3")
}

func TestConsumer_PermanentHandlerErrorStops(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Offset: 4}}}
	err := newTestConsumer(reader).Consume(context.Background(), func(context.Context, kafka.Message) error {
		return backoff.Permanent(errors.New("schema mismatch"))
	})
	assert.ErrorContains(t, err, "schema mismatch")
	assert.Empty(t, reader.committedOffsets())
}

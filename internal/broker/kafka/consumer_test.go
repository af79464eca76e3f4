package kafka

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{
		{Key: []byte("1"), Value: []byte("a")},
		{Key: []byte("2"), Value: []byte("b")},
	}}
	c := newConsumerWithReader(r)

	var got []string
	err := c.Consume(context.Background(), func(key, value []byte) error {
		got = append(got, string(value))
		return nil
	})
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []string{"a", "b"}, got)
	require.Len(t, r.committed, 2)
}

func TestConsumer_HandlerErrorStopsWithoutCommit(t *testing.T) {
	r := &scriptedReader{msgs: []kafka.Message{
		{Key: []byte("1"), Value: []byte("a")},
	}}
	c := newConsumerWithReader(r)

	boom := errors.New("boom")
	err := c.Consume(context.Background(), func(key, value []byte) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, r.committed)
}

func TestConsumer_Close(t *testing.T) {
	r := &scriptedReader{}
	c := newConsumerWithReader(r)
	require.NoError(t, c.Close())
	require.True(t, r.closed)
}

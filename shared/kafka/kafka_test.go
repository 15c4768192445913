package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	OwnerID string `json:"ownerId"`
}

func TestTypedMessageHandler(t *testing.T) {
	var processed []string
	h := &TypedMessageHandler[upload]{
		Validate: func(m *upload) bool { return m.OwnerID != "" },
		Process: func(_ context.Context, m *upload) error {
			if m.OwnerID == "retry" {
				return errors.New("transient")
			}
			processed = append(processed, m.OwnerID)
			return nil
		},
		AlwaysMark: true,
	}
	ctx := context.Background()

	mark, err := h.HandleMessage(ctx, []byte(`{"ownerId":"u1"}`))
	assert.NoError(t, err)
	assert.True(t, mark)

	mark, err = h.HandleMessage(ctx, []byte(`not json`))
	assert.NoError(t, err)
	assert.True(t, mark, "undecodable messages are skipped")

	mark, err = h.HandleMessage(ctx, []byte(`{}`))
	assert.NoError(t, err)
	assert.True(t, mark, "invalid messages are skipped")

	mark, err = h.HandleMessage(ctx, []byte(`{"ownerId":"retry"}`))
	assert.Error(t, err)
	assert.False(t, mark, "processing errors are retried")

	assert.Equal(t, []string{"u1"}, processed)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type handlerFunc func(ctx context.Context, message []byte) (bool, error)

func (f handlerFunc) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	return f(ctx, message)
}

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	h := &consumerGroupHandler{
		messageHandler: handlerFunc(func(_ context.Context, m []byte) (bool, error) {
			return string(m) != "keep", nil
		}),
		ready: make(chan bool),
		log:   newConsumer(nil, ConsumerConfig{}).log,
	}
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("a")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("keep")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: []byte("b")}
	close(claim.messages)

	require.NoError(t, h.Setup(session))
	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Equal(t, []int64{1, 3}, session.marked)
}

func TestProducerPublishJSON(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got upload
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.OwnerID != "u1" {
			return errors.New("unexpected owner " + got.OwnerID)
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithClient(mock, "docintake.job-events")
	require.NoError(t, p.PublishJSON(context.Background(), "job-1", upload{OwnerID: "u1"}))

	err := p.PublishJSON(context.Background(), "job-2", upload{OwnerID: "u2"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, p.Close())
}

func TestNewProducerRequiresConfig(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	assert.Error(t, err)

	_, err = NewConsumer(ConsumerConfig{Topic: "t"})
	assert.Error(t, err)
}

package log

import (
	"context"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_ReturnsStoredEntry(t *testing.T) {
	entry := logrus.WithField("service", "tickets")
	ctx := ToContext(context.Background(), entry)

	assert.Same(t, entry, FromContext(ctx))
}

func TestFromContext_FallsBackToStandardLogger(t *testing.T) {
	entry := FromContext(context.Background())

	require.NotNil(t, entry)
	assert.Same(t, logrus.StandardLogger(), entry.Logger)
}

func TestCorrelationID(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abc")
	assert.Equal(t, "abc", CorrelationIDFromContext(ctx))

	generated := CorrelationIDFromContext(context.Background())
	assert.True(t, strings.HasPrefix(generated, "gen_"))
}

func TestWatermillAdapter_WritesThroughLogrus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	adapter := NewWatermill(logrus.NewEntry(logger)).With(watermill.LogFields{"topic": "order:created"})
	adapter.Info("subscribed", watermill.LogFields{"consumer_group": "tickets-service"})

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "subscribed", hook.LastEntry().Message)
	assert.Equal(t, "order:created", hook.LastEntry().Data["topic"])
	assert.Equal(t, "tickets-service", hook.LastEntry().Data["consumer_group"])
}

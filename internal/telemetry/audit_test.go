package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit_log.roomchat", "roomchat-service", "test")

	var captured AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit_log.roomchat", mock.MatchedBy(func(event any) bool {
		env, ok := event.(AuditEnvelope)
		if ok {
			captured = env
		}
		return ok
	})).Return(nil).Once()

	userID := int64(7)
	emitter.Emit(context.Background(), "INFO", "Room created", "req-1", &userID)

	publisher.AssertExpectations(t)
	require.Equal(t, 1, captured.SchemaVersion)
	require.Equal(t, "audit_log", captured.EventType)
	require.Equal(t, "roomchat-service", captured.Service)
	require.Equal(t, "req-1", captured.RequestID)
	require.NotNil(t, captured.UserID)
	require.Equal(t, int64(7), *captured.UserID)
	require.Equal(t, "INFO", captured.Payload.Level)
	require.Equal(t, "Room created", captured.Payload.Text)
}

func TestEmitNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "ignored", "req-1", nil)
}

func TestEmitNilPublisherIsNoop(t *testing.T) {
	emitter := NewAuditEmitter(nil, "audit_log.roomchat", "roomchat-service", "test")
	emitter.Emit(context.Background(), "INFO", "ignored", "req-1", nil)
}

package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogNormalized(t *testing.T) {
	t.Run("unset timestamp gets the current time", func(t *testing.T) {
		entry := AuditLog{Action: "settlement.process_lorry", Entity: "lorry", EntityID: "100"}
		stamped := entry.normalized()
		assert.WithinDuration(t, time.Now().UTC(), stamped.At, time.Second)
	})

	t.Run("explicit timestamp is preserved", func(t *testing.T) {
		at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
		entry := AuditLog{Action: "lorry.approve", Entity: "lorry_request", EntityID: "5", At: at}
		assert.Equal(t, at, entry.normalized().At)
	})
}

func TestAuditLoggerRecordNilSafe(t *testing.T) {
	var l *AuditLogger
	err := l.Record(context.Background(), AuditLog{Action: "x", Entity: "y", EntityID: "1"})
	require.Error(t, err)
}

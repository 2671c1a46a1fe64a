// Package analytics counts message activity per (user, device, day).
// Message contents are never stored, only counters.
package analytics

import (
	"context"
	"fmt"
	"time"

	"walink/internal/domain"

	"github.com/uptrace/bun"
)

// Counter implements domain.AnalyticsRecorder with a daily upsert
type Counter struct {
	db *bun.DB
}

// NewCounter creates an analytics counter
func NewCounter(db *bun.DB) *Counter {
	return &Counter{db: db}
}

// Record increments the counter for one message
func (c *Counter) Record(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, dir domain.Direction) error {
	column := "messages_received"
	if dir == domain.DirectionSent {
		column = "messages_sent"
	}

	stat := &domain.MessageStat{
		UserID:   userID,
		DeviceID: deviceID,
		Date:     time.Now().Truncate(24 * time.Hour),
	}
	if dir == domain.DirectionSent {
		stat.MessagesSent = 1
	} else {
		stat.MessagesReceived = 1
	}

	_, err := c.db.NewInsert().
		Model(stat).
		On("CONFLICT (user_id, device_id, date) DO UPDATE").
		Set(fmt.Sprintf("%s = ms.%s + 1", column, column)).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to record %s message: %w", dir, err)
	}
	return nil
}

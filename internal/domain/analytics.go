package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// MessageStat accumulates per-day message counters for one device.
// Rows are upserted on (user_id, device_id, date).
type MessageStat struct {
	bun.BaseModel `bun:"table:message_stats,alias:ms"`

	ID               int64     `bun:",pk,autoincrement" json:"id"`
	UserID           UserID    `bun:"user_id,notnull" json:"user_id"`
	DeviceID         DeviceID  `bun:"device_id,notnull" json:"device_id"`
	Date             time.Time `bun:"date,notnull" json:"date"`
	MessagesSent     int64     `bun:"messages_sent,notnull,default:0" json:"messages_sent"`
	MessagesReceived int64     `bun:"messages_received,notnull,default:0" json:"messages_received"`
}

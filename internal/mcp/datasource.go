package mcp

import (
	"context"
	"time"

	"github.com/claude/hevysync/internal/server"
	"github.com/claude/hevysync/internal/upload"
)

// Ledger is the read side of the delivery ledger. *upload.StateDB satisfies it.
type Ledger interface {
	Lookup(ctx context.Context, key string) (*upload.Delivery, error)
	Pending(ctx context.Context) ([]upload.Delivery, error)
	Abandoned(ctx context.Context) ([]upload.Delivery, error)
	LastPass(ctx context.Context) (*upload.PassRecord, error)
}

// Watermark reads the stored watermark. *cursor.Store satisfies it.
type Watermark interface {
	Peek() (time.Time, bool, error)
}

// Trigger queues passes. *server.Scheduler satisfies it.
type Trigger interface {
	Trigger() bool
	Status() server.SchedulerStatus
}

var _ Ledger = (*upload.StateDB)(nil)
var _ Trigger = (*server.Scheduler)(nil)

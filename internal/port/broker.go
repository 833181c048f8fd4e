package port

import (
	"context"
)

type Producer interface {
	SendRepairTask(ctx context.Context, photoID int64) error
	Close() error
}

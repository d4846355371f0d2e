package out

import (
	"context"

	"mailminer/core/domain"
)

// BoardSyncPort pushes accepted action items to an external board.
// Push failures are reported to the caller but never affect the
// pipeline's own run accounting.
type BoardSyncPort interface {
	Push(ctx context.Context, item *domain.ActionItem) error
}

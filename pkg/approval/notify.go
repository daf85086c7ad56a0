package approval

import (
	"context"
	"log/slog"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/stream"
)

// EventNotifier publishes each transition as a status_changed event whose
// status is the state name and whose detail is the approval id.
func EventNotifier(l stream.Listener) Notifier {
	return NotifierFunc(func(ctx context.Context, a Approval) {
		ev := api.StatusEvent(string(a.State), a.ID)
		if err := l.OnEvent(ctx, ev); err != nil {
			slog.Warn("approval notification failed", "approval_id", a.ID, "error", err)
		}
	})
}

package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// InboxLimit is how many notifications the inbox returns
const InboxLimit = 50

// Store persists inbox records
type Store interface {
	ListForUser(ctx context.Context, userID types.ID, limit int) ([]*Notification, error)
	// MarkRead sets read_at on a notification owned by userID and appends entry
	// in the same transaction. It returns NotFound for someone else's notification.
	MarkRead(ctx context.Context, id, userID types.ID, at time.Time, entry *audit.Entry) (*Notification, error)
}

// Inbox serves a caller's own notifications
type Inbox struct {
	store  Store
	logger *zap.Logger
}

// NewInbox creates an inbox over store
func NewInbox(store Store, logger *zap.Logger) *Inbox {
	return &Inbox{store: store, logger: logger.Named("inbox")}
}

// List returns the caller's latest notifications
func (i *Inbox) List(ctx context.Context, actor auth.Identity) ([]*Notification, error) {
	if actor.IsZero() {
		return nil, errors.Unauthenticated("authentication required")
	}
	if !actor.Can().CanReceiveNotifications {
		return []*Notification{}, nil
	}

	list, err := i.store.ListForUser(ctx, actor.UserID, InboxLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	return list, nil
}

// MarkRead marks one of the caller's notifications read
func (i *Inbox) MarkRead(ctx context.Context, actor auth.Identity, id types.ID) (*Notification, error) {
	if actor.IsZero() {
		return nil, errors.Unauthenticated("authentication required")
	}

	entry := audit.NewEntry(actor.UserID.Ptr(), string(actor.Role),
		audit.ActionMarkNotificationRead, audit.EntityNotification, id.Ptr(), nil)

	n, err := i.store.MarkRead(ctx, id, actor.UserID, time.Now().UTC(), entry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark notification read")
	}
	return n, nil
}

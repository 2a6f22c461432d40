package chatService

import (
	"FinChat/internal/entity"
	contextPkg "FinChat/pkg/context"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

func (s *chatService) Snapshot(ctx context.Context) (entity.Snapshot, error) {
	return s.snapshots.Get(ctx)
}

func (s *chatService) ReplaceSnapshot(ctx context.Context, snap entity.Snapshot) error {
	if err := s.snapshots.Replace(ctx, stampSynced(snap, s.utils.Now())); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Failed to replace snapshot")
		return err
	}
	return nil
}

// mergeSnapshot folds balances and card lists the server just returned into
// the cache the resolver answers from.
func (s *chatService) mergeSnapshot(ctx context.Context, replies []entity.MessageBody) {
	now := s.utils.Now()

	for _, body := range replies {
		fresh, ok := entity.SnapshotFromPayload(body.Payload)
		if !ok {
			continue
		}
		if err := s.snapshots.Merge(ctx, stampSynced(fresh, now)); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"kind":       body.Payload.Kind(),
				"error":      err.Error(),
			}).Warn("Failed to merge snapshot")
		}
	}
}

// stampSynced fills a missing sync time with now; server data without one is
// as fresh as the response that carried it.
func stampSynced(snap entity.Snapshot, now time.Time) entity.Snapshot {
	out := entity.NewSnapshot()
	for id, a := range snap.Accounts {
		if a.SyncedAt.IsZero() {
			a.SyncedAt = now
		}
		out.Accounts[id] = a
	}
	for id, c := range snap.Cards {
		if c.SyncedAt.IsZero() {
			c.SyncedAt = now
		}
		out.Cards[id] = c
	}
	return out
}

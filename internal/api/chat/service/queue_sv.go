package chatService

import (
	"FinChat/internal/api/chat"
	chatRepository "FinChat/internal/api/chat/repository"
	"FinChat/internal/entity"
	"FinChat/pkg/assistant"
	contextPkg "FinChat/pkg/context"
	"FinChat/pkg/response"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Flush replays queued actions oldest first, one at a time. It stops at the
// first transient failure so later entries never overtake an earlier one. A
// flush that finds another one running returns immediately with Skipped set.
func (s *chatService) Flush(ctx context.Context) (chat.FlushReport, error) {
	requestID := contextPkg.GetRequestID(ctx)
	report := chat.FlushReport{}

	if !s.flushMu.TryLock() {
		report.Skipped = true
		return report, nil
	}
	defer s.flushMu.Unlock()

	repo, err := s.chatRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return report, chat.ErrFlushQueue
	}

	for {
		if ctx.Err() != nil {
			report.Stopped = true
			break
		}

		entry, err := repo.Queue.Head(ctx)
		if errors.Is(err, chat.ErrQueueEntryMissing) {
			break
		}
		if err != nil {
			return report, response.Wrap(chat.ErrFlushQueue, "read queue head")
		}

		result, err := s.send(ctx, entry.CorrelationID, entry.Action)
		step, stepErr := s.settle(ctx, repo, entry, result, err)
		if stepErr != nil {
			return report, stepErr
		}

		switch step {
		case outcomeSent:
			report.Sent++
			continue
		case outcomeRejected:
			report.Rejected++
			continue
		}

		s.log.WithFields(logrus.Fields{
			"request_id":     requestID,
			"correlation_id": entry.CorrelationID,
			"attempts":       entry.Attempts + 1,
			"error":          err.Error(),
		}).Warn("Flush stopped on transient failure")
		report.Stopped = true
		break
	}

	pending, err := repo.Queue.Size(context.WithoutCancel(ctx))
	if err == nil {
		report.Pending = pending
	}

	if report.Sent > 0 || report.Rejected > 0 {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"sent":       report.Sent,
			"rejected":   report.Rejected,
			"pending":    report.Pending,
		}).Info("Offline queue flushed")
	}

	return report, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRejected
	outcomeTransient
)

// settle records the result of sending one queued entry. It holds pipelineMu
// so a concurrent Submit never observes a half-applied entry.
func (s *chatService) settle(ctx context.Context, repo chatRepository.Client, entry entity.QueueEntry, result *entity.SendResult, sendErr error) (outcome, error) {
	requestID := contextPkg.GetRequestID(ctx)

	s.pipelineMu.Lock()
	defer s.pipelineMu.Unlock()

	if sendErr == nil {
		s.applyResult(ctx, repo, entry.CorrelationID, result)
		if err := repo.Queue.Remove(ctx, entry.CorrelationID); err != nil {
			return outcomeSent, response.Wrap(chat.ErrFlushQueue, "remove %s", entry.CorrelationID)
		}
		return outcomeSent, nil
	}

	var rejected *assistant.RejectedError
	if errors.As(sendErr, &rejected) {
		s.log.WithFields(logrus.Fields{
			"request_id":     requestID,
			"correlation_id": entry.CorrelationID,
			"status":         rejected.StatusCode,
			"reason":         rejected.Reason,
		}).Warn("Queued action rejected")

		if err := repo.Queue.Remove(ctx, entry.CorrelationID); err != nil {
			return outcomeRejected, response.Wrap(chat.ErrFlushQueue, "remove %s", entry.CorrelationID)
		}
		s.markFailed(ctx, repo, entry.CorrelationID, rejected.Reason)
		return outcomeRejected, nil
	}

	if err := repo.Queue.RecordAttempt(ctx, entry.CorrelationID, sendErr.Error()); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":     requestID,
			"correlation_id": entry.CorrelationID,
			"error":          err.Error(),
		}).Error("Failed to record attempt")
	}
	return outcomeTransient, nil
}

// TriggerFlush asks the background worker for a flush. Triggers that arrive
// while one is already waiting are merged into it.
func (s *chatService) TriggerFlush(reason string) {
	select {
	case s.flushTrigger <- reason:
	default:
	}
}

// Run is the flush worker. It flushes once at start, then on every trigger
// and every offline to online transition, no faster than the configured pace.
func (s *chatService) Run(ctx context.Context) {
	unsubscribe := s.signal.OnChange(func(online bool) {
		if online {
			s.TriggerFlush("online")
		}
	})
	defer unsubscribe()

	s.TriggerFlush("start")

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-s.flushTrigger:
			if err := s.flushLimiter.Wait(ctx); err != nil {
				return
			}

			id, err := s.utils.NewULIDFromTimestamp(s.utils.Now())
			if err != nil {
				id = "unknown"
			}
			flushCtx := contextPkg.WithRequestID(ctx, fmt.Sprintf("flush-%s", id))

			report, err := s.Flush(flushCtx)
			if err != nil {
				s.log.WithFields(logrus.Fields{
					"request_id": contextPkg.GetRequestID(flushCtx),
					"reason":     reason,
					"error":      err.Error(),
				}).Error("Background flush failed")
				continue
			}
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(flushCtx),
				"reason":     reason,
				"sent":       report.Sent,
				"pending":    report.Pending,
			}).Debug("Background flush done")
		}
	}
}

func (s *chatService) Queue(ctx context.Context) (*chat.QueueResponse, error) {
	repo, err := s.chatRepo.NewClient(false)
	if err != nil {
		return nil, err
	}

	entries, err := repo.Queue.List(ctx)
	if err != nil {
		return nil, response.Wrap(chat.ErrLoadHistory, "list queue")
	}

	out := &chat.QueueResponse{
		Size:    len(entries),
		Entries: make([]chat.QueueEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, makeQueueEntryResponse(e))
	}
	return out, nil
}

func makeQueueEntryResponse(e entity.QueueEntry) chat.QueueEntryResponse {
	return chat.QueueEntryResponse{
		CorrelationID: e.CorrelationID,
		Endpoint:      e.Action.Endpoint,
		Method:        e.Action.Method,
		EnqueuedAt:    e.EnqueuedAt,
		Attempts:      e.Attempts,
		LastError:     e.LastError,
	}
}

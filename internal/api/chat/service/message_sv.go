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
	"strings"

	"github.com/sirupsen/logrus"
)

// Submit stores the user's text and tries to deliver it. Delivery problems are
// absorbed into the message status and the offline queue; only a failure to
// store the message itself is returned.
func (s *chatService) Submit(ctx context.Context, text string) (entity.Message, error) {
	requestID := contextPkg.GetRequestID(ctx)

	text = strings.TrimSpace(text)
	if text == "" {
		return entity.Message{}, chat.ErrEmptyMessage
	}

	repo, err := s.chatRepo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return entity.Message{}, chat.ErrStoreMessage
	}

	now := s.utils.Now()
	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate message id")
		return entity.Message{}, chat.ErrStoreMessage
	}

	msg := entity.NewUserMessage(id, text, now)
	if err := repo.Messages.Append(ctx, msg); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": id,
			"error":      err.Error(),
		}).Error("Failed to append user message")
		return entity.Message{}, response.Wrap(chat.ErrStoreMessage, "append %s", id)
	}
	s.feed.publishMessage(msg)

	s.deliver(context.WithoutCancel(ctx), repo, msg)

	return s.current(ctx, repo, msg), nil
}

// Retry puts a FAILED message back on the delivery path under its original id,
// so the server can still deduplicate it.
func (s *chatService) Retry(ctx context.Context, id string) (entity.Message, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.chatRepo.NewClient(false)
	if err != nil {
		return entity.Message{}, err
	}

	msg, err := repo.Messages.Get(ctx, id)
	if err != nil {
		return entity.Message{}, err
	}
	if !msg.Status.CanRetry() || msg.Origin != entity.OriginUser {
		return entity.Message{}, chat.ErrNotRetryable
	}

	moved, err := repo.Messages.Retry(ctx, id)
	if err != nil {
		return entity.Message{}, response.Wrap(chat.ErrStoreMessage, "retry %s", id)
	}
	if !moved {
		return entity.Message{}, chat.ErrNotRetryable
	}
	msg.Status = entity.StatusPending
	s.feed.publishMessage(msg)

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"message_id": id,
	}).Info("Retrying failed message")

	s.deliver(context.WithoutCancel(ctx), repo, msg)
	s.TriggerFlush("retry")

	return s.current(ctx, repo, msg), nil
}

func (s *chatService) MarkRead(ctx context.Context, id string) (entity.Message, error) {
	repo, err := s.chatRepo.NewClient(false)
	if err != nil {
		return entity.Message{}, err
	}

	msg, err := repo.Messages.Get(ctx, id)
	if err != nil {
		return entity.Message{}, err
	}
	if msg.Status == entity.StatusRead {
		return msg, nil
	}

	moved, err := repo.Messages.UpdateStatus(ctx, id, entity.StatusRead)
	if err != nil {
		return entity.Message{}, response.Wrap(chat.ErrStoreMessage, "mark %s read", id)
	}
	if !moved {
		return entity.Message{}, chat.ErrNotReadable
	}

	msg.Status = entity.StatusRead
	s.feed.publishMessage(msg)
	return msg, nil
}

func (s *chatService) History(ctx context.Context) ([]entity.Message, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.chatRepo.NewClient(false)
	if err != nil {
		return nil, err
	}

	messages, err := repo.Messages.LoadAll(ctx)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to load message history")
		return nil, chat.ErrLoadHistory
	}

	return messages, nil
}

// Reset drops the whole local session: history and pending queue.
func (s *chatService) Reset(ctx context.Context) error {
	requestID := contextPkg.GetRequestID(ctx)

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	repo, err := s.chatRepo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create repository client")
		return chat.ErrResetSession
	}
	defer repo.Rollback()

	if err := repo.Queue.Clear(ctx); err != nil {
		return chat.ErrResetSession
	}
	if err := repo.Messages.Clear(ctx); err != nil {
		return chat.ErrResetSession
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to commit transaction")
		return chat.ErrResetSession
	}

	s.feed.publishReset()
	s.log.WithFields(logrus.Fields{"request_id": requestID}).Info("Session reset")
	return nil
}

// deliver sends msg right away when the link looks usable and nothing older is
// waiting, otherwise it parks the action in the queue behind the older ones.
func (s *chatService) deliver(ctx context.Context, repo chatRepository.Client, msg entity.Message) {
	requestID := contextPkg.GetRequestID(ctx)

	action, err := assistant.BuildSendAction(msg.Body.Text, msg.ID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Failed to build send action")
		s.markFailed(ctx, repo, msg.ID, err.Error())
		return
	}

	online := s.signal.IsOnline()
	backlog := !s.queueIsEmpty(ctx, repo)

	if online && !backlog {
		result, err := s.send(ctx, msg.ID, action)
		if err == nil {
			s.pipelineMu.Lock()
			s.applyResult(ctx, repo, msg.ID, result)
			s.pipelineMu.Unlock()
			return
		}

		var rejected *assistant.RejectedError
		if errors.As(err, &rejected) {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"message_id": msg.ID,
				"status":     rejected.StatusCode,
				"reason":     rejected.Reason,
			}).Warn("Assistant rejected message")
			s.pipelineMu.Lock()
			s.markFailed(ctx, repo, msg.ID, rejected.Reason)
			s.pipelineMu.Unlock()
			return
		}

		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Warn("Send failed, queuing message")
	}

	s.park(ctx, repo, msg, action)
	if online && backlog {
		s.TriggerFlush("backlog")
	}
}

func (s *chatService) send(ctx context.Context, correlationID string, action entity.SendAction) (*entity.SendResult, error) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	result, err := s.sender.Send(sendCtx, correlationID, action)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &entity.SendResult{}
	}
	return result, nil
}

func (s *chatService) queueIsEmpty(ctx context.Context, repo chatRepository.Client) bool {
	size, err := repo.Queue.Size(ctx)
	return err == nil && size == 0
}

// park answers locally with a provisional reply and then enqueues the action.
// The reply is stored first so a flush never sees an entry whose provisional
// reply is still being written.
func (s *chatService) park(ctx context.Context, repo chatRepository.Client, msg entity.Message, action entity.SendAction) {
	requestID := contextPkg.GetRequestID(ctx)

	s.pipelineMu.Lock()
	defer s.pipelineMu.Unlock()

	if _, err := repo.Messages.FindReply(ctx, msg.ID); err != nil {
		s.appendProvisional(ctx, repo, msg)
	}

	entry := entity.QueueEntry{
		CorrelationID: msg.ID,
		Action:        action,
		EnqueuedAt:    s.utils.Now(),
	}
	if err := repo.Queue.Enqueue(ctx, entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Failed to enqueue action")
		s.markFailed(ctx, repo, msg.ID, "could not queue message")
	}
}

func (s *chatService) appendProvisional(ctx context.Context, repo chatRepository.Client, msg entity.Message) {
	requestID := contextPkg.GetRequestID(ctx)

	snap, err := s.snapshots.Get(ctx)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Snapshot unavailable, resolving without cached data")
		snap = entity.NewSnapshot()
	}

	body := entity.MessageBody{Text: GenericAckText}
	if payload := s.resolver.Resolve(msg.Body.Text, snap); payload != nil {
		body = entity.MessageBody{Payload: payload}
	}

	if _, err := s.appendReply(ctx, repo, msg.ID, body, true); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Failed to append provisional reply")
	}
}

// applyResult records a confirmed delivery. The first server reply takes the
// place of the provisional one so the conversation keeps its shape.
func (s *chatService) applyResult(ctx context.Context, repo chatRepository.Client, id string, result *entity.SendResult) {
	requestID := contextPkg.GetRequestID(ctx)

	s.setStatus(ctx, repo, id, entity.StatusSent)
	if result.Read {
		s.setStatus(ctx, repo, id, entity.StatusRead)
	}

	provisional, err := repo.Messages.FindReply(ctx, id)
	hasProvisional := err == nil

	for i, body := range result.Replies {
		if i == 0 && hasProvisional {
			confirmed := entity.NewAssistantMessage(provisional.ID, id, body, provisional.CreatedAt)
			s.replace(ctx, repo, confirmed)
			continue
		}
		if _, err := s.appendReply(ctx, repo, id, body, false); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"message_id": id,
				"error":      err.Error(),
			}).Error("Failed to append assistant reply")
		}
	}

	if len(result.Replies) == 0 && hasProvisional {
		provisional.Provisional = false
		provisional.Note = ""
		s.replace(ctx, repo, provisional)
	}

	s.mergeSnapshot(ctx, result.Replies)
}

func (s *chatService) markFailed(ctx context.Context, repo chatRepository.Client, id, reason string) {
	s.setStatus(ctx, repo, id, entity.StatusFailed)

	if provisional, err := repo.Messages.FindReply(ctx, id); err == nil {
		provisional.Note = RejectedNotePrefix + reason
		s.replace(ctx, repo, provisional)
	}
}

func (s *chatService) setStatus(ctx context.Context, repo chatRepository.Client, id string, status entity.MessageStatus) {
	moved, err := repo.Messages.UpdateStatus(ctx, id, status)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"message_id": id,
			"status":     status,
			"error":      err.Error(),
		}).Error("Failed to update message status")
		return
	}
	if !moved {
		return
	}

	if msg, err := repo.Messages.Get(ctx, id); err == nil {
		s.feed.publishMessage(msg)
	}
}

func (s *chatService) replace(ctx context.Context, repo chatRepository.Client, msg entity.Message) {
	if err := repo.Messages.Replace(ctx, msg.ID, msg); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Failed to replace message")
		return
	}
	s.feed.publishMessage(msg)
}

func (s *chatService) appendReply(ctx context.Context, repo chatRepository.Client, replyTo string, body entity.MessageBody, provisional bool) (entity.Message, error) {
	now := s.utils.Now()
	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		return entity.Message{}, err
	}

	reply := entity.NewAssistantMessage(id, replyTo, body, now)
	if provisional {
		reply.Provisional = true
		reply.Note = OfflineNote
	}

	if err := repo.Messages.Append(ctx, reply); err != nil {
		return entity.Message{}, err
	}
	s.feed.publishMessage(reply)
	return reply, nil
}

// current re-reads msg after delivery so callers see its final status.
func (s *chatService) current(ctx context.Context, repo chatRepository.Client, msg entity.Message) entity.Message {
	if latest, err := repo.Messages.Get(context.WithoutCancel(ctx), msg.ID); err == nil {
		return latest
	}
	return msg
}

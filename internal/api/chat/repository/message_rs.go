package chatRepository

import (
	"FinChat/internal/api/chat"
	"FinChat/internal/entity"
	contextPkg "FinChat/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type MessageDB struct {
	ID          string `db:"id"`
	Origin      string `db:"origin"`
	BodyText    string `db:"body_text"`
	Payload     string `db:"payload"`
	CreatedAt   int64  `db:"created_at"`
	Status      string `db:"status"`
	ReplyTo     string `db:"reply_to"`
	Provisional bool   `db:"provisional"`
	Note        string `db:"note"`
}

func (r *messagesRepository) Append(ctx context.Context, msg entity.Message) error {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV, err := messageArgs(msg)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Failed to encode message payload")
		return err
	}

	query, args, err := sqlx.Named(queryAppendMessage, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for Append")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": msg.ID,
			"error":      err.Error(),
		}).Error("Database error when appending message")
		return err
	}

	return nil
}

func (r *messagesRepository) UpdateStatus(ctx context.Context, id string, status entity.MessageStatus) (bool, error) {
	from, ok := status.DeliveryPredecessor()
	if !ok {
		return false, nil
	}
	return r.moveStatus(ctx, id, from, status)
}

func (r *messagesRepository) Retry(ctx context.Context, id string) (bool, error) {
	return r.moveStatus(ctx, id, entity.StatusFailed, entity.StatusPending)
}

func (r *messagesRepository) moveStatus(ctx context.Context, id string, from, to entity.MessageStatus) (bool, error) {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV := map[string]interface{}{
		"id":          id,
		"status":      to.String(),
		"from_status": from.String(),
	}

	query, args, err := sqlx.Named(queryUpdateMessageStatus, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("UpdateStatus named query preparation err")
		return false, err
	}
	query = r.q.Rebind(query)

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": id,
			"error":      err.Error(),
		}).Error("UpdateStatus execution err")
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if affected == 0 {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": id,
			"from":       from,
			"to":         to,
		}).Debug("Status update ignored")
	}

	return affected > 0, nil
}

func (r *messagesRepository) Replace(ctx context.Context, id string, msg entity.Message) error {
	requestID := contextPkg.GetRequestID(ctx)

	msg.ID = id
	argsKV, err := messageArgs(msg)
	if err != nil {
		return err
	}

	query, args, err := sqlx.Named(queryReplaceMessage, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Replace named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"message_id": id,
			"error":      err.Error(),
		}).Error("Replace execution err")
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return chat.ErrMessageNotFound
	}

	return nil
}

func (r *messagesRepository) Get(ctx context.Context, id string) (entity.Message, error) {
	return r.getOne(ctx, queryGetMessageByID, map[string]interface{}{"id": id}, "Get")
}

func (r *messagesRepository) FindReply(ctx context.Context, replyTo string) (entity.Message, error) {
	argsKV := map[string]interface{}{
		"reply_to":    replyTo,
		"origin":      string(entity.OriginAssistant),
		"provisional": true,
	}
	return r.getOne(ctx, queryFindReply, argsKV, "FindReply")
}

func (r *messagesRepository) getOne(ctx context.Context, namedQuery string, argsKV map[string]interface{}, op string) (entity.Message, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var row MessageDB

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " named query preparation err")
		return entity.Message{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Message{}, chat.ErrMessageNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " execution err")
		return entity.Message{}, err
	}

	return r.makeMessage(row), nil
}

func (r *messagesRepository) LoadAll(ctx context.Context) ([]entity.Message, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var rows []MessageDB

	if err := r.q.SelectContext(ctx, &rows, queryLoadAllMessages); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("LoadAll execution err")
		return nil, err
	}

	messages := make([]entity.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, r.makeMessage(row))
	}

	return messages, nil
}

func (r *messagesRepository) Clear(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, queryClearMessages); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Clear messages execution err")
		return err
	}
	return nil
}

func messageArgs(msg entity.Message) (map[string]interface{}, error) {
	payload, err := entity.EncodePayload(msg.Body.Payload)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":          msg.ID,
		"origin":      string(msg.Origin),
		"body_text":   msg.Body.Text,
		"payload":     string(payload),
		"created_at":  msg.CreatedAt.UnixNano(),
		"status":      msg.Status.String(),
		"reply_to":    msg.ReplyTo,
		"provisional": msg.Provisional,
		"note":        msg.Note,
	}, nil
}

// makeMessage keeps rows whose payload no longer decodes, as Unknown, rather
// than dropping them from the history.
func (r *messagesRepository) makeMessage(row MessageDB) entity.Message {
	payload, err := entity.DecodePayload([]byte(row.Payload))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"message_id": row.ID,
			"error":      err.Error(),
		}).Warn("Stored payload could not be decoded")
		payload = entity.UnknownPayload{Raw: []byte(row.Payload)}
	}

	return entity.Message{
		ID:     row.ID,
		Origin: entity.Origin(row.Origin),
		Body: entity.MessageBody{
			Text:    row.BodyText,
			Payload: payload,
		},
		CreatedAt:   time.Unix(0, row.CreatedAt).UTC(),
		Status:      entity.MessageStatus(row.Status),
		ReplyTo:     row.ReplyTo,
		Provisional: row.Provisional,
		Note:        row.Note,
	}
}

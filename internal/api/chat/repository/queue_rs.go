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

type QueueEntryDB struct {
	CorrelationID string `db:"correlation_id"`
	Endpoint      string `db:"endpoint"`
	Method        string `db:"method"`
	Body          string `db:"body"`
	EnqueuedAt    int64  `db:"enqueued_at"`
	Attempts      int    `db:"attempts"`
	LastError     string `db:"last_error"`
}

func (r *queueRepository) Enqueue(ctx context.Context, entry entity.QueueEntry) error {
	requestID := contextPkg.GetRequestID(ctx)
	argsKV := map[string]interface{}{
		"correlation_id": entry.CorrelationID,
		"endpoint":       entry.Action.Endpoint,
		"method":         entry.Action.Method,
		"body":           string(entry.Action.Body),
		"enqueued_at":    entry.EnqueuedAt.UnixNano(),
		"attempts":       entry.Attempts,
		"last_error":     entry.LastError,
	}

	query, args, err := sqlx.Named(queryEnqueueAction, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for Enqueue")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id":     requestID,
			"correlation_id": entry.CorrelationID,
			"error":          err.Error(),
		}).Error("Database error when enqueuing action")
		return err
	}

	return nil
}

func (r *queueRepository) Head(ctx context.Context) (entity.QueueEntry, error) {
	var row QueueEntryDB

	if err := r.q.QueryRowxContext(ctx, queryQueueHead).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.QueueEntry{}, chat.ErrQueueEntryMissing
		}
		r.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Head execution err")
		return entity.QueueEntry{}, err
	}

	return makeQueueEntry(row), nil
}

func (r *queueRepository) Get(ctx context.Context, correlationID string) (entity.QueueEntry, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var row QueueEntryDB

	query, args, err := sqlx.Named(queryGetQueueEntry, map[string]interface{}{
		"correlation_id": correlationID,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Get queue entry named query preparation err")
		return entity.QueueEntry{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.QueueEntry{}, chat.ErrQueueEntryMissing
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Get queue entry execution err")
		return entity.QueueEntry{}, err
	}

	return makeQueueEntry(row), nil
}

func (r *queueRepository) List(ctx context.Context) ([]entity.QueueEntry, error) {
	var rows []QueueEntryDB

	if err := r.q.SelectContext(ctx, &rows, queryListQueue); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("List queue execution err")
		return nil, err
	}

	entries := make([]entity.QueueEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, makeQueueEntry(row))
	}
	return entries, nil
}

func (r *queueRepository) RecordAttempt(ctx context.Context, correlationID, lastError string) error {
	return r.exec(ctx, queryRecordAttempt, map[string]interface{}{
		"correlation_id": correlationID,
		"last_error":     lastError,
	}, "RecordAttempt")
}

func (r *queueRepository) Remove(ctx context.Context, correlationID string) error {
	return r.exec(ctx, queryRemoveQueueEntry, map[string]interface{}{
		"correlation_id": correlationID,
	}, "Remove")
}

func (r *queueRepository) Size(ctx context.Context) (int, error) {
	var total int
	if err := r.q.QueryRowxContext(ctx, queryCountQueue).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Size execution err")
		return 0, err
	}
	return total, nil
}

func (r *queueRepository) Clear(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, queryClearQueue); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Clear queue execution err")
		return err
	}
	return nil
}

func (r *queueRepository) exec(ctx context.Context, namedQuery string, argsKV map[string]interface{}, op string) error {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(namedQuery, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error(op + " execution err")
		return err
	}
	return nil
}

func makeQueueEntry(row QueueEntryDB) entity.QueueEntry {
	return entity.QueueEntry{
		CorrelationID: row.CorrelationID,
		Action: entity.SendAction{
			Endpoint: row.Endpoint,
			Method:   row.Method,
			Body:     []byte(row.Body),
		},
		EnqueuedAt: time.Unix(0, row.EnqueuedAt).UTC(),
		Attempts:   row.Attempts,
		LastError:  row.LastError,
	}
}

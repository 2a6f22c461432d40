package chatRepository

import (
	"FinChat/internal/entity"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

func New(db *sqlx.DB, log *logrus.Logger) Repository {
	return &repository{
		DB:  db,
		log: log,
	}
}

type repository struct {
	DB  *sqlx.DB
	log *logrus.Logger
}

type Repository interface {
	NewClient(tx bool) (Client, error)
}

func (r *repository) NewClient(tx bool) (Client, error) {
	var sqlExecutor SQLExecutor
	var commitFunc, rollbackFunc func() error

	sqlExecutor = r.DB

	if tx {
		var err error
		txx, err := r.DB.Beginx()
		if err != nil {
			return Client{}, err
		}

		sqlExecutor = txx
		commitFunc = txx.Commit
		rollbackFunc = txx.Rollback
	} else {
		commitFunc = func() error { return nil }
		rollbackFunc = func() error { return nil }
	}

	return Client{
		Messages: &messagesRepository{q: sqlExecutor, log: r.log},
		Queue:    &queueRepository{q: sqlExecutor, log: r.log},
		Commit:   commitFunc,
		Rollback: rollbackFunc,
	}, nil
}

type Client struct {
	Messages interface {
		Append(ctx context.Context, msg entity.Message) error
		// UpdateStatus reports false when the id is unknown or the move would
		// regress the message; neither is an error.
		UpdateStatus(ctx context.Context, id string, status entity.MessageStatus) (bool, error)
		// Retry moves a FAILED message back to PENDING.
		Retry(ctx context.Context, id string) (bool, error)
		Replace(ctx context.Context, id string, msg entity.Message) error
		Get(ctx context.Context, id string) (entity.Message, error)
		FindReply(ctx context.Context, replyTo string) (entity.Message, error)
		LoadAll(ctx context.Context) ([]entity.Message, error)
		Clear(ctx context.Context) error
	}

	Queue interface {
		// Enqueue inserts or replaces the entry for its correlation id. A
		// replacement keeps the original position and attempt count.
		Enqueue(ctx context.Context, entry entity.QueueEntry) error
		Head(ctx context.Context) (entity.QueueEntry, error)
		Get(ctx context.Context, correlationID string) (entity.QueueEntry, error)
		List(ctx context.Context) ([]entity.QueueEntry, error)
		RecordAttempt(ctx context.Context, correlationID, lastError string) error
		Remove(ctx context.Context, correlationID string) error
		Size(ctx context.Context) (int, error)
		Clear(ctx context.Context) error
	}

	Commit   func() error
	Rollback func() error
}

type messagesRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}

type queueRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}

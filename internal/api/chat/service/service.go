package chatService

import (
	"FinChat/internal/api/chat"
	chatRepository "FinChat/internal/api/chat/repository"
	"FinChat/internal/entity"
	"FinChat/pkg/assistant"
	"FinChat/pkg/connectivity"
	"FinChat/pkg/nlp"
	"FinChat/pkg/snapshot"
	"FinChat/pkg/utils"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	OfflineNote        = "Offline: ainda não confirmado pelo servidor"
	GenericAckText     = "Recebi sua mensagem. Ela será enviada assim que a conexão voltar."
	RejectedNotePrefix = "Não confirmado: "
)

type IChatService interface {
	Submit(ctx context.Context, text string) (entity.Message, error)
	Retry(ctx context.Context, id string) (entity.Message, error)
	MarkRead(ctx context.Context, id string) (entity.Message, error)
	History(ctx context.Context) ([]entity.Message, error)
	Reset(ctx context.Context) error

	Flush(ctx context.Context) (chat.FlushReport, error)
	TriggerFlush(reason string)
	Queue(ctx context.Context) (*chat.QueueResponse, error)
	Run(ctx context.Context)

	Snapshot(ctx context.Context) (entity.Snapshot, error)
	ReplaceSnapshot(ctx context.Context, snap entity.Snapshot) error

	Subscribe() (<-chan chat.StreamEvent, func())
}

type Config struct {
	// SendTimeout bounds one online send attempt before falling back to the queue.
	SendTimeout time.Duration
	// FlushInterval is the minimum spacing between two queue flushes.
	FlushInterval time.Duration
	// FlushBurst lets a few triggers through back to back before pacing starts.
	FlushBurst int
}

func (c Config) withDefaults() Config {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.FlushBurst <= 0 {
		c.FlushBurst = 1
	}
	return c
}

type chatService struct {
	log       *logrus.Logger
	chatRepo  chatRepository.Repository
	sender    assistant.ISender
	signal    connectivity.ISignal
	resolver  nlp.IResolver
	snapshots snapshot.Provider
	utils     utils.IUtils
	cfg       Config

	// pipelineMu serializes local bookkeeping of deliveries: provisional
	// replies, queue writes and applied results. Sends happen outside it.
	pipelineMu sync.Mutex

	flushMu      sync.Mutex
	flushLimiter *rate.Limiter
	flushTrigger chan string

	feed *feed
}

func NewChatService(
	log *logrus.Logger,
	chatRepo chatRepository.Repository,
	sender assistant.ISender,
	signal connectivity.ISignal,
	resolver nlp.IResolver,
	snapshots snapshot.Provider,
	utils utils.IUtils,
	cfg Config,
) IChatService {
	cfg = cfg.withDefaults()

	return &chatService{
		log:          log,
		chatRepo:     chatRepo,
		sender:       sender,
		signal:       signal,
		resolver:     resolver,
		snapshots:    snapshots,
		utils:        utils,
		cfg:          cfg,
		flushLimiter: rate.NewLimiter(rate.Every(cfg.FlushInterval), cfg.FlushBurst),
		flushTrigger: make(chan string, 1),
		feed:         newFeed(log),
	}
}

func (s *chatService) Subscribe() (<-chan chat.StreamEvent, func()) {
	return s.feed.subscribe()
}

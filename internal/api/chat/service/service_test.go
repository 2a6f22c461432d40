package chatService

import (
	"FinChat/internal/api/chat"
	chatRepository "FinChat/internal/api/chat/repository"
	"FinChat/internal/entity"
	"FinChat/pkg/assistant"
	"FinChat/pkg/connectivity"
	"FinChat/pkg/log"
	"FinChat/pkg/nlp"
	"FinChat/pkg/snapshot"
	"FinChat/pkg/utils"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type respondFunc func(correlationID string, call int) (*entity.SendResult, error)

type fakeSender struct {
	mu      sync.Mutex
	calls   []string
	respond respondFunc
}

func (f *fakeSender) Send(_ context.Context, correlationID string, _ entity.SendAction) (*entity.SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, correlationID)
	call := len(f.calls)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return &entity.SendResult{}, nil
	}
	return respond(correlationID, call)
}

func (f *fakeSender) setRespond(fn respondFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeSender) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func reply(text string) respondFunc {
	return func(string, int) (*entity.SendResult, error) {
		return &entity.SendResult{Replies: []entity.MessageBody{{Text: text}}}, nil
	}
}

var errTimeout = errors.New("context deadline exceeded")

type fixture struct {
	svc       IChatService
	signal    connectivity.ISignal
	repo      chatRepository.Repository
	snapshots snapshot.Provider
	sender    *fakeSender
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	return newFixtureWithSnapshots(t, online, snapshot.NewMemory())
}

func newFixtureWithSnapshots(t *testing.T, online bool, snapshots snapshot.Provider) *fixture {
	t.Helper()

	logger := log.NewTestLogger()
	f := &fixture{
		signal:    connectivity.NewSignal(online, 0),
		repo:      chatRepository.NewMemory(logger),
		snapshots: snapshots,
		sender:    &fakeSender{},
	}
	f.svc = NewChatService(logger, f.repo, f.sender, f.signal, nlp.NewResolver(nil), f.snapshots, utils.New(), Config{
		SendTimeout:   time.Second,
		FlushInterval: time.Millisecond,
	})
	return f
}

func (f *fixture) history(t *testing.T) []entity.Message {
	t.Helper()

	msgs, err := f.svc.History(context.Background())
	require.NoError(t, err)
	return msgs
}

func (f *fixture) queueSize(t *testing.T) int {
	t.Helper()

	q, err := f.svc.Queue(context.Background())
	require.NoError(t, err)
	return q.Size
}

func TestSubmit_EmptyText(t *testing.T) {
	f := newFixture(t, true)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Submit(context.Background(), text)
		assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	}
	assert.Empty(t, f.history(t))
	assert.Empty(t, f.sender.Calls())
}

func TestSubmit_OfflineQueuesWithProvisionalReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	msg, err := f.svc.Submit(ctx, "  Paguei 150 de Netflix ")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, msg.Status)
	assert.Equal(t, "Paguei 150 de Netflix", msg.Body.Text)
	assert.Empty(t, f.sender.Calls(), "nothing is sent while offline")

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[0].ID)

	provisional := msgs[1]
	assert.Equal(t, entity.OriginAssistant, provisional.Origin)
	assert.Equal(t, msg.ID, provisional.ReplyTo)
	assert.True(t, provisional.Provisional)
	assert.Equal(t, OfflineNote, provisional.Note)

	tx, ok := provisional.Body.Payload.(entity.TransactionPayload)
	require.True(t, ok, "got %T", provisional.Body.Payload)
	assert.Equal(t, entity.TransactionExpense, tx.Type)
	assert.True(t, decimal.NewFromInt(150).Equal(tx.Amount))
	assert.Equal(t, "Netflix", tx.Description)

	q, err := f.svc.Queue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.Size)
	assert.Equal(t, msg.ID, q.Entries[0].CorrelationID)
	assert.Equal(t, assistant.MessagesEndpoint, q.Entries[0].Endpoint)
}

func TestSubmit_OfflineUnrecognizedGetsGenericAck(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Submit(context.Background(), "bom dia")
	require.NoError(t, err)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, GenericAckText, msgs[1].Body.Text)
	assert.Nil(t, msgs[1].Body.Payload)
	assert.True(t, msgs[1].Provisional)
}

func TestFlush_ReplacesProvisionalReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	msg, err := f.svc.Submit(ctx, "Paguei 150 de Netflix")
	require.NoError(t, err)
	provisionalID := f.history(t)[1].ID

	f.signal.Set(true)
	f.sender.setRespond(reply("Gasto de R$ 150 registrado"))

	report, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, chat.FlushReport{Sent: 1}, report)
	assert.Equal(t, []string{msg.ID}, f.sender.Calls())

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, entity.StatusSent, msgs[0].Status)

	confirmed := msgs[1]
	assert.Equal(t, provisionalID, confirmed.ID)
	assert.False(t, confirmed.Provisional)
	assert.Empty(t, confirmed.Note)
	assert.Equal(t, "Gasto de R$ 150 registrado", confirmed.Body.Text)
	assert.Equal(t, 0, f.queueSize(t))
}

func TestFlush_NoRepliesConfirmsProvisional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.svc.Submit(ctx, "Gastei 50 no Uber")
	require.NoError(t, err)

	f.signal.Set(true)
	_, err = f.svc.Flush(ctx)
	require.NoError(t, err)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Provisional)
	assert.Empty(t, msgs[1].Note)
	assert.IsType(t, entity.TransactionPayload{}, msgs[1].Body.Payload)
}

func TestFlush_ExtraRepliesAreAppended(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.svc.Submit(ctx, "Gastei 50 no Uber")
	require.NoError(t, err)

	f.signal.Set(true)
	f.sender.setRespond(func(string, int) (*entity.SendResult, error) {
		return &entity.SendResult{Replies: []entity.MessageBody{{Text: "registrado"}, {Text: "quer ver o saldo?"}}}, nil
	})
	_, err = f.svc.Flush(ctx)
	require.NoError(t, err)

	msgs := f.history(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "registrado", msgs[1].Body.Text)
	assert.Equal(t, "quer ver o saldo?", msgs[2].Body.Text)
	assert.False(t, msgs[2].Provisional)
}

func TestFlush_TransientFailureKeepsCorrelationID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	msg, err := f.svc.Submit(ctx, "recebi 500 do freela")
	require.NoError(t, err)

	f.signal.Set(true)
	f.sender.setRespond(func(_ string, call int) (*entity.SendResult, error) {
		if call < 3 {
			return nil, errTimeout
		}
		return &entity.SendResult{}, nil
	})

	for attempt := 1; attempt <= 2; attempt++ {
		report, err := f.svc.Flush(ctx)
		require.NoError(t, err)
		assert.True(t, report.Stopped)
		assert.Equal(t, 1, report.Pending)

		q, err := f.svc.Queue(ctx)
		require.NoError(t, err)
		require.Len(t, q.Entries, 1)
		assert.Equal(t, attempt, q.Entries[0].Attempts)
		assert.Equal(t, errTimeout.Error(), q.Entries[0].LastError)
	}

	report, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{msg.ID, msg.ID, msg.ID}, f.sender.Calls())
	assert.Equal(t, entity.StatusSent, f.history(t)[0].Status)
}

func TestFlush_StopsAtFirstTransientFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	first, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "gastei 20 no cinema")
	require.NoError(t, err)

	f.signal.Set(true)
	f.sender.setRespond(func(string, int) (*entity.SendResult, error) { return nil, errTimeout })

	report, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, report.Stopped)
	assert.Equal(t, 2, report.Pending)
	assert.Equal(t, []string{first.ID}, f.sender.Calls(), "later entries must not overtake the head")
}

func TestFlush_RejectedEntryFailsAndFlushContinues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	bad, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)
	good, err := f.svc.Submit(ctx, "gastei 20 no cinema")
	require.NoError(t, err)

	f.signal.Set(true)
	f.sender.setRespond(func(id string, _ int) (*entity.SendResult, error) {
		if id == bad.ID {
			return nil, &assistant.RejectedError{StatusCode: 422, Reason: "valor inválido"}
		}
		return &entity.SendResult{}, nil
	})

	report, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, chat.FlushReport{Sent: 1, Rejected: 1}, report)
	assert.Equal(t, []string{bad.ID, good.ID}, f.sender.Calls())

	byID := map[string]entity.Message{}
	replies := map[string]entity.Message{}
	for _, m := range f.history(t) {
		byID[m.ID] = m
		if m.ReplyTo != "" {
			replies[m.ReplyTo] = m
		}
	}
	assert.Equal(t, entity.StatusFailed, byID[bad.ID].Status)
	assert.Equal(t, entity.StatusSent, byID[good.ID].Status)
	assert.Equal(t, RejectedNotePrefix+"valor inválido", replies[bad.ID].Note)
	assert.Equal(t, 0, f.queueSize(t))
}

func TestFlush_EmptyQueue(t *testing.T) {
	f := newFixture(t, true)

	report, err := f.svc.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chat.FlushReport{}, report)
}

func TestFlush_ConcurrentCallIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	f.signal.Set(true)
	f.sender.setRespond(func(string, int) (*entity.SendResult, error) {
		close(started)
		<-release
		return &entity.SendResult{}, nil
	})

	done := make(chan chat.FlushReport)
	go func() {
		report, _ := f.svc.Flush(ctx)
		done <- report
	}()

	<-started
	report, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	close(release)
	assert.Equal(t, 1, (<-done).Sent)
}

// gatedSnapshots holds the first Get until released, pausing a Submit in the
// middle of answering locally.
type gatedSnapshots struct {
	snapshot.Provider
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSnapshots) Get(ctx context.Context) (entity.Snapshot, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Provider.Get(ctx)
}

func TestFlush_DuringOfflineSubmitLeavesNoOrphanedProvisional(t *testing.T) {
	ctx := context.Background()
	gate := &gatedSnapshots{
		Provider: snapshot.NewMemory(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	f := newFixtureWithSnapshots(t, false, gate)
	f.sender.setRespond(reply("Despesa registrada"))

	submitted := make(chan entity.Message, 1)
	go func() {
		msg, err := f.svc.Submit(ctx, "Paguei 150 de Netflix")
		assert.NoError(t, err)
		submitted <- msg
	}()

	<-gate.entered
	report, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sent, "the action is not queued before its provisional reply exists")

	close(gate.release)
	msg := <-submitted
	assert.Equal(t, entity.StatusPending, msg.Status)

	report, err = f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, entity.StatusSent, msgs[0].Status)
	assert.Equal(t, "Despesa registrada", msgs[1].Body.Text)
	assert.False(t, msgs[1].Provisional)
	assert.Empty(t, msgs[1].Note)
}

func TestSubmitAndFlush_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.sender.setRespond(reply("ok"))

	const submits = 20
	stop := make(chan struct{})
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		for {
			select {
			case <-stop:
				return
			default:
				_, err := f.svc.Flush(ctx)
				assert.NoError(t, err)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < submits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, "gastei 10 no posto")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(stop)
	<-flushed

	_, err := f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, f.queueSize(t))

	replies := make(map[string]int)
	msgs := f.history(t)
	require.Len(t, msgs, 2*submits)
	for _, m := range msgs {
		if m.Origin == entity.OriginUser {
			assert.Equal(t, entity.StatusSent, m.Status)
			continue
		}
		assert.False(t, m.Provisional, "reply %s to %s left provisional", m.ID, m.ReplyTo)
		replies[m.ReplyTo]++
	}
	assert.Len(t, replies, submits)
	for id, n := range replies {
		assert.Equal(t, 1, n, "replies to %s", id)
	}
}

func TestSubmit_OnlineSendsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.sender.setRespond(func(string, int) (*entity.SendResult, error) {
		return &entity.SendResult{
			Read: true,
			Replies: []entity.MessageBody{{Payload: entity.BalancePayload{
				Accounts: []entity.AccountBalance{{ID: "acc-1", Name: "Conta", Balance: decimal.NewFromInt(900)}},
				Total:    decimal.NewFromInt(900),
			}}},
		}, nil
	})

	msg, err := f.svc.Submit(ctx, "saldo")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, msg.Status)
	assert.Len(t, f.sender.Calls(), 1)
	assert.Equal(t, 0, f.queueSize(t))

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Provisional)

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, snap.Accounts, "acc-1")
	assert.False(t, snap.Accounts["acc-1"].SyncedAt.IsZero())

	// the cached balance now answers offline
	f.signal.Set(false)
	_, err = f.svc.Submit(ctx, "qual meu saldo")
	require.NoError(t, err)

	msgs = f.history(t)
	require.Len(t, msgs, 4)
	bal, ok := msgs[3].Body.Payload.(entity.BalancePayload)
	require.True(t, ok, "got %T", msgs[3].Body.Payload)
	assert.True(t, decimal.NewFromInt(900).Equal(bal.Total))
}

func TestSubmit_OnlineTransientFailureParks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.sender.setRespond(func(string, int) (*entity.SendResult, error) { return nil, errTimeout })

	msg, err := f.svc.Submit(ctx, "Gastei 50 no Uber")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, msg.Status)
	assert.Equal(t, 1, f.queueSize(t))

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Provisional)
}

func TestSubmit_OnlineRejectedFailsAndRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.sender.setRespond(func(string, int) (*entity.SendResult, error) {
		return nil, &assistant.RejectedError{StatusCode: 400, Reason: "mensagem inválida"}
	})

	msg, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, msg.Status)
	assert.Equal(t, 0, f.queueSize(t))

	_, err = f.svc.MarkRead(ctx, msg.ID)
	assert.ErrorIs(t, err, chat.ErrNotReadable)

	f.sender.setRespond(reply("ok"))
	retried, err := f.svc.Retry(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, retried.ID)
	assert.Equal(t, entity.StatusSent, retried.Status)
	assert.Equal(t, []string{msg.ID, msg.ID}, f.sender.Calls())

	_, err = f.svc.Retry(ctx, msg.ID)
	assert.ErrorIs(t, err, chat.ErrNotRetryable)
}

func TestSubmit_OnlineWithBacklogKeepsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	first, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)

	f.signal.Set(true)
	second, err := f.svc.Submit(ctx, "gastei 20 no cinema")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, second.Status)
	assert.Empty(t, f.sender.Calls(), "a new message must wait behind the backlog")

	_, err = f.svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, f.sender.Calls())
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	msg, err := f.svc.Submit(ctx, "oi")
	require.NoError(t, err)
	require.Equal(t, entity.StatusSent, msg.Status)

	read, err := f.svc.MarkRead(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, read.Status)

	read, err = f.svc.MarkRead(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, read.Status)

	_, err = f.svc.MarkRead(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	events, unsubscribe := f.svc.Subscribe()
	defer unsubscribe()

	_, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)
	require.NoError(t, f.svc.Reset(ctx))

	assert.Empty(t, f.history(t))
	assert.Equal(t, 0, f.queueSize(t))

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{chat.StreamEventMessage, chat.StreamEventMessage, chat.StreamEventReset}, types)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t, false)

	events, unsubscribe := f.svc.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)

	_, err := f.svc.Submit(context.Background(), "oi")
	require.NoError(t, err)
}

func TestRun_FlushesWhenOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, false)

	msg, err := f.svc.Submit(ctx, "gastei 10 no posto")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()

	f.signal.Set(true)
	require.Eventually(t, func() bool {
		for _, m := range f.history(t) {
			if m.ID == msg.ID {
				return m.Status == entity.StatusSent
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestReplaceSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	snap := entity.NewSnapshot()
	snap.Cards["card-1"] = entity.CardUsage{ID: "card-1", Name: "Visa", Limit: decimal.NewFromInt(1000)}
	require.NoError(t, f.svc.ReplaceSnapshot(ctx, snap))

	got, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, got.Cards, "card-1")
	assert.False(t, got.Cards["card-1"].SyncedAt.IsZero())
	assert.Empty(t, got.Accounts)
}

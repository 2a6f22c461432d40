package speech

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbackLog struct {
	mu     sync.Mutex
	events []string
}

func (c *callbackLog) add(ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *callbackLog) OnFinalResult(text string) { c.add("result:" + text) }
func (c *callbackLog) OnEnd()                    { c.add("end") }
func (c *callbackLog) OnError(code string)       { c.add("error:" + code) }

func TestBridge_Unsupported(t *testing.T) {
	var sent []Command
	b := NewBridge(func(cmd Command) error {
		sent = append(sent, cmd)
		return nil
	})

	assert.False(t, b.Available())
	assert.ErrorIs(t, b.Start(), ErrUnavailable)
	assert.Empty(t, sent)
}

func TestBridge_StartStop(t *testing.T) {
	var sent []Command
	b := NewBridge(func(cmd Command) error {
		sent = append(sent, cmd)
		return nil
	})
	b.SetSupported(true)
	require.True(t, b.Available())

	require.NoError(t, b.Start())
	require.NoError(t, b.Start())
	assert.True(t, b.Active())
	assert.Equal(t, uint64(1), b.Current())

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())
	assert.Equal(t, []Command{
		{Type: CommandStart, Stream: 1},
		{Type: CommandStop, Stream: 1},
	}, sent)

	b.HandleEnd(1)
	assert.False(t, b.Active())

	require.NoError(t, b.Stop())
	assert.Len(t, sent, 2, "stopping an idle stream sends nothing")
}

func TestBridge_StartWhileStoppingOpensNewStream(t *testing.T) {
	var sent []Command
	b := NewBridge(func(cmd Command) error {
		sent = append(sent, cmd)
		return nil
	})
	b.SetSupported(true)
	cb := &callbackLog{}
	b.SetCallbacks(cb)

	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())
	require.NoError(t, b.Start())
	assert.Equal(t, uint64(2), b.Current())
	assert.Equal(t, Command{Type: CommandStart, Stream: 2}, sent[2])

	b.HandleFinalResult(1, "late")
	b.HandleError(1, "network")
	b.HandleEnd(1)
	assert.Empty(t, cb.events)
	assert.True(t, b.Active(), "the old stream's end leaves the new one running")

	b.HandleFinalResult(2, "fresh")
	assert.Equal(t, []string{"result:fresh"}, cb.events)
}

func TestBridge_Abandon(t *testing.T) {
	var sent []Command
	b := NewBridge(func(cmd Command) error {
		sent = append(sent, cmd)
		return nil
	})
	b.SetSupported(true)
	cb := &callbackLog{}
	b.SetCallbacks(cb)

	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())
	b.Abandon()
	assert.False(t, b.Active())

	b.HandleEnd(1)
	assert.Empty(t, cb.events)

	require.NoError(t, b.Start())
	assert.Equal(t, Command{Type: CommandStart, Stream: 2}, sent[len(sent)-1])
}

func TestBridge_StartSendFailure(t *testing.T) {
	b := NewBridge(func(Command) error { return errors.New("socket closed") })
	b.SetSupported(true)

	assert.Error(t, b.Start())
	assert.False(t, b.Active())
}

func TestBridge_ForwardsCallbacks(t *testing.T) {
	b := NewBridge(func(Command) error { return nil })
	b.SetSupported(true)

	// results without a live stream are dropped
	b.HandleFinalResult(0, "lost")

	cb := &callbackLog{}
	b.SetCallbacks(cb)
	require.NoError(t, b.Start())

	b.HandleFinalResult(1, "gastei 50")
	b.HandleError(1, "no-speech")
	b.HandleFinalResult(0, "untagged")
	b.HandleEnd(1)

	assert.Equal(t, []string{"result:gastei 50", "error:no-speech", "end"}, cb.events)
}

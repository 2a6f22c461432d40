package connectivity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *recorder) listen(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, online)
}

func (r *recorder) got() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func TestSignal_NotifiesOnTransitionOnly(t *testing.T) {
	s := NewSignal(false, 0)
	rec := &recorder{}
	s.OnChange(rec.listen)

	s.Set(false)
	s.Set(true)
	s.Set(true)
	s.Set(false)

	assert.Equal(t, []bool{true, false}, rec.got())
	assert.False(t, s.IsOnline())
}

func TestSignal_Unsubscribe(t *testing.T) {
	s := NewSignal(true, 0)
	rec := &recorder{}
	unsubscribe := s.OnChange(rec.listen)

	s.Set(false)
	unsubscribe()
	s.Set(true)

	assert.Equal(t, []bool{false}, rec.got())
	assert.True(t, s.IsOnline())
}

func TestSignal_ListenersInSubscriptionOrder(t *testing.T) {
	s := NewSignal(false, 0)

	var (
		mu    sync.Mutex
		order []string
	)
	add := func(name string) Listener {
		return func(bool) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	s.OnChange(add("first"))
	s.OnChange(add("second"))

	s.Set(true)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSignal_DebounceSuppressesFlaps(t *testing.T) {
	s := NewSignal(true, 50*time.Millisecond)
	rec := &recorder{}
	s.OnChange(rec.listen)

	s.Set(false)
	s.Set(true)
	s.Set(false)
	s.Set(true)

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.got())
	assert.True(t, s.IsOnline())
}

func TestSignal_DebounceSettles(t *testing.T) {
	s := NewSignal(true, 20*time.Millisecond)
	rec := &recorder{}
	s.OnChange(rec.listen)

	s.Set(false)
	assert.True(t, s.IsOnline(), "state must not change before the debounce elapses")

	require.Eventually(t, func() bool { return !s.IsOnline() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{false}, rec.got())
}

package middleware

import (
	"FinChat/pkg/log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(r rate.Limit, burst int) (*rateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := newRateLimiter(r, burst)
	l.now = clock.now
	l.idleTTL = time.Minute
	return l, clock
}

func TestRateLimiter_BurstPerClient(t *testing.T) {
	l, _ := newTestLimiter(rate.Every(time.Hour), 2)

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	assert.True(t, l.allow("10.0.0.2"), "buckets are per client")
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	l, clock := newTestLimiter(rate.Every(time.Hour), 1)

	require.True(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.2"))
	assert.Equal(t, 2, l.size())

	clock.advance(30 * time.Second)
	assert.False(t, l.allow("10.0.0.2"))

	clock.advance(45 * time.Second)
	require.True(t, l.allow("10.0.0.3"))
	assert.Equal(t, 2, l.size(), "10.0.0.1 was idle for more than the TTL")

	// an evicted client starts over with a full bucket
	assert.True(t, l.allow("10.0.0.1"))
}

func TestNewRateLimiter_Handler(t *testing.T) {
	m := New(log.NewTestLogger(), rate.Every(time.Hour), 1)

	app := fiber.New()
	app.Post("/limited", m.NewRateLimiter, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

package utils

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	Now() time.Time
}

type utils struct {
	mu      sync.Mutex
	entropy io.Reader
	clock   func() time.Time
}

func New() IUtils {
	return &utils{
		entropy: ulid.Monotonic(rand.Reader, 0),
		clock:   time.Now,
	}
}

// NewWithClock is used by tests that need reproducible timestamps.
func NewWithClock(clock func() time.Time) IUtils {
	return &utils{
		entropy: ulid.Monotonic(rand.Reader, 0),
		clock:   clock,
	}
}

// NewULIDFromTimestamp returns ids that sort in generation order, including
// ids generated within the same millisecond.
func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), u.entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (u *utils) Now() time.Time {
	return u.clock().UTC()
}

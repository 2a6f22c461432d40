package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type ProbeConfig struct {
	URL          string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	return c
}

// Probe holds a heartbeat websocket to the remote API and reports whether it is
// reachable. A live connection means online; any read or ping failure means
// offline until the next successful dial.
type Probe struct {
	cfg    ProbeConfig
	signal ISignal
	log    *logrus.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewProbe(cfg ProbeConfig, signal ISignal, log *logrus.Logger) *Probe {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	return &Probe{
		cfg:    cfg.withDefaults(),
		signal: signal,
		log:    log,
		dialer: &dialer,
	}
}

// Run dials, waits for the connection to drop and dials again with capped
// exponential backoff until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	backoff := p.cfg.MinBackoff

	for {
		connected, err := p.session(ctx)
		if connected {
			backoff = p.cfg.MinBackoff
		}
		if ctx.Err() != nil {
			p.close()
			return
		}

		p.signal.Set(false)
		if err != nil {
			p.log.WithFields(logrus.Fields{
				"url":     p.cfg.URL,
				"error":   err.Error(),
				"backoff": backoff.String(),
			}).Debug("Heartbeat connection lost")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}
}

func (p *Probe) session(ctx context.Context) (bool, error) {
	if p.cfg.URL == "" {
		return false, fmt.Errorf("heartbeat URL not configured")
	}

	conn, _, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to connect to %s: %w", p.cfg.URL, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	defer p.close()

	conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(p.cfg.WriteTimeout))
	})

	p.log.WithFields(logrus.Fields{"url": p.cfg.URL}).Info("Heartbeat connected")
	p.signal.Set(true)

	done := make(chan struct{})
	defer close(done)
	go p.keepAlive(ctx, conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return true, err
		}
	}
}

func (p *Probe) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			p.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.cfg.WriteTimeout))
			p.mu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (p *Probe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

package config

import (
	"FinChat/database/postgres"
	"FinChat/database/sqlite"
	chatHandler "FinChat/internal/api/chat/handler"
	chatRepository "FinChat/internal/api/chat/repository"
	chatService "FinChat/internal/api/chat/service"
	voiceHandler "FinChat/internal/api/voice/handler"
	voiceService "FinChat/internal/api/voice/service"
	"FinChat/internal/middleware"
	"FinChat/pkg/assistant"
	"FinChat/pkg/connectivity"
	"FinChat/pkg/nlp"
	"FinChat/pkg/redis"
	"FinChat/pkg/snapshot"
	"FinChat/pkg/utils"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	snapshots   snapshot.Provider
	sender      assistant.ISender
	signal      connectivity.ISignal
	probe       *connectivity.Probe
	resolver    nlp.IResolver

	chatService  chatService.IChatService
	voiceService voiceService.IVoiceService

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.snapshots == nil {
		server.snapshots = snapshot.NewMemory()
	}
	if server.signal == nil {
		server.signal = connectivity.NewSignal(true, 0)
	}
	if server.resolver == nil {
		server.resolver = nlp.NewResolver(nil)
	}
	if server.sender == nil {
		server.sender = assistant.New(server.log)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase opens the store selected by STORE_DRIVER (sqlite, postgres or
// memory) and makes sure its tables exist.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		var (
			db  *sqlx.DB
			err error
		)

		switch driver := getEnv("STORE_DRIVER", "sqlite"); driver {
		case "memory":
			return nil
		case "sqlite":
			db, err = sqlite.New(os.Getenv("SQLITE_PATH"))
		case "postgres":
			db, err = postgres.New()
		default:
			return fmt.Errorf("unknown STORE_DRIVER %q", driver)
		}
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := chatRepository.Migrate(ctx, db); err != nil {
			db.Close()
			return err
		}

		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

// WithSnapshotProvider keeps the cached balances in Redis when
// SNAPSHOT_BACKEND=redis and a Redis client was configured, in memory otherwise.
func WithSnapshotProvider() ServerOption {
	return func(s *Server) error {
		if getEnv("SNAPSHOT_BACKEND", "memory") == "redis" {
			if s.redisServer == nil {
				return fmt.Errorf("redis must be configured before the redis snapshot backend")
			}
			s.snapshots = snapshot.NewRedis(s.redisServer, os.Getenv("SNAPSHOT_KEY"))
			return nil
		}
		s.snapshots = snapshot.NewMemory()
		return nil
	}
}

func WithSender(sender assistant.ISender) ServerOption {
	return func(s *Server) error {
		s.sender = sender
		return nil
	}
}

// WithConnectivity builds the online signal and, when ASSISTANT_HEARTBEAT_URL
// is set, the probe that drives it. Without a probe the daemon assumes it is
// online until the UI reports otherwise.
func WithConnectivity() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before connectivity")
		}

		heartbeatURL := os.Getenv("ASSISTANT_HEARTBEAT_URL")
		debounce := getDurationEnv("CONNECTIVITY_DEBOUNCE", 2*time.Second)

		s.signal = connectivity.NewSignal(heartbeatURL == "", debounce)
		if heartbeatURL != "" {
			s.probe = connectivity.NewProbe(connectivity.ProbeConfig{
				URL:          heartbeatURL,
				PingInterval: getDurationEnv("HEARTBEAT_INTERVAL", 15*time.Second),
			}, s.signal, s.log)
		}
		return nil
	}
}

func WithResolver() ServerOption {
	return func(s *Server) error {
		vocab, err := nlp.LoadVocabulary(os.Getenv("RESOLVER_VOCABULARY"))
		if err != nil {
			return fmt.Errorf("failed to load resolver vocabulary: %w", err)
		}
		s.resolver = nlp.NewResolver(vocab)
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		reqRate := rate.Limit(getIntEnv("API_RATE_LIMIT", 50))
		s.middleware = middleware.New(s.log, reqRate, getIntEnv("API_RATE_BURST", 100))
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Chat Domain
	var chatRepo chatRepository.Repository
	if s.db != nil {
		chatRepo = chatRepository.New(s.db, s.log)
	} else {
		chatRepo = chatRepository.NewMemory(s.log)
	}
	s.chatService = chatService.NewChatService(s.log, chatRepo, s.sender, s.signal, s.resolver, s.snapshots, s.utils, chatService.Config{
		SendTimeout:   getDurationEnv("SEND_TIMEOUT", 15*time.Second),
		FlushInterval: getDurationEnv("FLUSH_MIN_INTERVAL", 2*time.Second),
	})
	chatHandlers := chatHandler.New(s.log, s.validator, s.middleware, s.chatService, s.signal)

	// Voice Domain
	s.voiceService = voiceService.NewVoiceService(s.log, s.chatService, s.utils, voiceService.SessionConfig{})
	voiceHandlers := voiceHandler.New(s.log, s.validator, s.middleware, s.voiceService)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, chatHandlers, voiceHandlers)
}

// Run starts the background workers and then serves HTTP until Shutdown.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.chatService.Run(ctx)
	}()

	if s.probe != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.probe.Run(ctx)
		}()
	}

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(middleware.LoggerConfig())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := getEnv("APP_PORT", "3000")
	if err := s.engine.Listen(fmt.Sprintf(":%s", port)); err != nil {
		cancel()
		s.wg.Wait()
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.voiceService != nil {
		s.voiceService.CloseAll()
	}

	err := s.engine.ShutdownWithContext(ctx)
	s.wg.Wait()

	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if s.redisServer != nil {
		if cerr := s.redisServer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":        "Server is Healthy!",
			"online":         s.signal.IsOnline(),
			"voice_sessions": s.voiceService.Count(),
		})
	})
}

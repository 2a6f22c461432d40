package voiceService

import (
	"FinChat/pkg/speech"
	"FinChat/pkg/utils"
	"sync"

	"github.com/sirupsen/logrus"
)

type IVoiceService interface {
	Open(recognizer speech.Recognizer) (*Session, error)
	Get(id string) (*Session, bool)
	Close(id string)
	CloseAll()
	Count() int
}

// voiceService owns one capture session per connected client.
type voiceService struct {
	log       *logrus.Logger
	submitter Submitter
	utils     utils.IUtils
	cfg       SessionConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewVoiceService(
	log *logrus.Logger,
	submitter Submitter,
	utils utils.IUtils,
	cfg SessionConfig,
) IVoiceService {
	return &voiceService{
		log:       log,
		submitter: submitter,
		utils:     utils,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}
}

func (s *voiceService) Open(recognizer speech.Recognizer) (*Session, error) {
	id, err := s.utils.NewULIDFromTimestamp(s.utils.Now())
	if err != nil {
		return nil, err
	}

	session := NewSession(id, s.log, recognizer, s.submitter, s.cfg)

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"session_id": id}).Debug("Voice session opened")
	return session, nil
}

func (s *voiceService) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	return session, ok
}

func (s *voiceService) Close(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.Close()
		s.log.WithFields(logrus.Fields{"session_id": id}).Debug("Voice session closed")
	}
}

func (s *voiceService) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

func (s *voiceService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

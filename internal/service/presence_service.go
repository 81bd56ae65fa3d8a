package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

const defaultPresenceTimeout = 5 * time.Second

// PresenceService announces connects and disconnects and keeps the online flag current.
type PresenceService interface {
	Connected(ctx context.Context, userID uint)
	Disconnected(ctx context.Context, userID uint)
	Wait()
}

type presenceService struct {
	users   repository.UserRepository
	emitter Emitter
	timeout time.Duration
	logger  zerolog.Logger
	pending sync.WaitGroup
}

// NewPresenceService constructs the presence service. Online flag writes use
// their own context bounded by timeout.
func NewPresenceService(users repository.UserRepository, emitter Emitter, timeout time.Duration, logger zerolog.Logger) PresenceService {
	if timeout <= 0 {
		timeout = defaultPresenceTimeout
	}
	return &presenceService{
		users:   users,
		emitter: emitter,
		timeout: timeout,
		logger:  logger.With().Str("component", "presence_service").Logger(),
	}
}

func (s *presenceService) Connected(ctx context.Context, userID uint) {
	s.emitter.ToAll(ctx, dto.EventUserConnected, dto.UserPresenceResponse{ID: dto.FormatID(userID)})
	s.persist(userID, true)
}

func (s *presenceService) Disconnected(ctx context.Context, userID uint) {
	s.emitter.ToAll(ctx, dto.EventUserDisconnected, dto.UserPresenceResponse{ID: dto.FormatID(userID)})
	s.persist(userID, false)
}

// Wait blocks until every pending online flag write has finished.
func (s *presenceService) Wait() {
	s.pending.Wait()
}

func (s *presenceService) persist(userID uint, online bool) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.users.SetOnlineStatus(ctx, userID, online, time.Now().UTC()); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Bool("online", online).Msg("failed to update online status")
		}
	}()
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat-gateway/internal/dto"
	"github.com/noah-isme/gema-chat-gateway/internal/models"
	"github.com/noah-isme/gema-chat-gateway/internal/observability"
	"github.com/noah-isme/gema-chat-gateway/internal/repository"
)

const callExpiryTimeout = 5 * time.Second

// CallService drives the private call state machine and relays signaling
// payloads to the other participant of the room.
type CallService interface {
	Start(ctx context.Context, callerID uint, input dto.SendCallOfferInput) error
	Answer(ctx context.Context, userID uint, input dto.AnswerCallOfferInput) error
	Decline(ctx context.Context, userID uint, input dto.CallRoomInput) error
	End(ctx context.Context, userID uint, input dto.CallRoomInput) error
	ShareCandidate(ctx context.Context, userID uint, input dto.ShareCandidateInput) error
	Close()
}

type callService struct {
	rooms       repository.RoomRepository
	calls       repository.CallRepository
	emitter     Emitter
	locks       *roomLocks
	ringTimeout time.Duration
	timersMu    sync.Mutex
	timers      map[uint]*time.Timer
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewCallService constructs the call service. A positive ringTimeout moves
// unanswered calls to NoAnswer after that long.
func NewCallService(rooms repository.RoomRepository, calls repository.CallRepository, emitter Emitter, ringTimeout time.Duration, logger zerolog.Logger) CallService {
	return &callService{
		rooms:       rooms,
		calls:       calls,
		emitter:     emitter,
		locks:       newRoomLocks(),
		ringTimeout: ringTimeout,
		timers:      make(map[uint]*time.Timer),
		tracer:      observability.Tracer("call"),
		logger:      logger.With().Str("component", "call_service").Logger(),
	}
}

// Start creates a Ringing call and rings the other participant. A room that
// already has an active call is skipped silently.
func (s *callService) Start(ctx context.Context, callerID uint, input dto.SendCallOfferInput) error {
	ctx, span := s.tracer.Start(ctx, "chat.call.start", trace.WithAttributes(
		attribute.String("chat.room_id", input.RoomID),
		attribute.Int64("chat.caller_id", int64(callerID)),
	))
	defer span.End()

	room, err := s.privateRoom(ctx, input.RoomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(callerID) {
		return nil
	}

	call, created, err := s.create(ctx, room.ID, callerID)
	if err != nil || !created {
		return recordSpanError(span, err)
	}
	s.armRingTimeout(room, call)

	for _, peer := range room.Peers(callerID) {
		s.emitter.ToUser(ctx, peer.UserID, dto.EventPrivateCallReceived, dto.CallOfferResponse{
			RoomID: dto.FormatID(room.ID),
			From:   dto.FormatID(callerID),
			Offer:  input.Offer,
			Call:   dto.NewCallResponse(call, peer.UserID),
		})
	}
	return nil
}

// Answer moves the ringing call to Ongoing, then relays the answer.
func (s *callService) Answer(ctx context.Context, userID uint, input dto.AnswerCallOfferInput) error {
	room, err := s.privateRoom(ctx, input.RoomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return nil
	}

	if _, err := s.advance(ctx, room.ID, func(call models.Call) (models.CallStatus, bool) {
		return models.CallStatusOngoing, call.Status == models.CallStatusRinging && call.CallerID != userID
	}); err != nil {
		return err
	}

	s.relay(ctx, room, userID, dto.EventPrivateCallAnswered, dto.CallAnswerResponse{
		RoomID: dto.FormatID(room.ID),
		From:   dto.FormatID(userID),
		Answer: input.Answer,
	})
	return nil
}

// Decline moves the ringing call to Declined, then tells the caller.
func (s *callService) Decline(ctx context.Context, userID uint, input dto.CallRoomInput) error {
	room, err := s.privateRoom(ctx, input.RoomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return nil
	}

	if _, err := s.advance(ctx, room.ID, func(call models.Call) (models.CallStatus, bool) {
		return models.CallStatusDeclined, call.Status == models.CallStatusRinging && call.CallerID != userID
	}); err != nil {
		return err
	}

	s.relay(ctx, room, userID, dto.EventPrivateCallDeclined, dto.CallPeerResponse{
		RoomID: dto.FormatID(room.ID),
		From:   dto.FormatID(userID),
	})
	return nil
}

// End hangs up. An ongoing call becomes Ended; a ringing call becomes NoAnswer
// when the caller hangs up and Declined when the callee does.
func (s *callService) End(ctx context.Context, userID uint, input dto.CallRoomInput) error {
	room, err := s.privateRoom(ctx, input.RoomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return nil
	}

	if _, err := s.advance(ctx, room.ID, func(call models.Call) (models.CallStatus, bool) {
		switch {
		case call.Status == models.CallStatusOngoing:
			return models.CallStatusEnded, true
		case call.CallerID == userID:
			return models.CallStatusNoAnswer, true
		default:
			return models.CallStatusDeclined, true
		}
	}); err != nil {
		return err
	}

	s.relay(ctx, room, userID, dto.EventPrivateCallEnded, dto.CallPeerResponse{
		RoomID: dto.FormatID(room.ID),
		From:   dto.FormatID(userID),
	})
	return nil
}

// ShareCandidate relays an ICE candidate. Only room existence is checked.
func (s *callService) ShareCandidate(ctx context.Context, userID uint, input dto.ShareCandidateInput) error {
	room, err := loadRoom(ctx, s.rooms, input.RoomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return nil
	}

	s.relay(ctx, room, userID, dto.EventCandidateReceived, dto.CandidateResponse{
		RoomID:    dto.FormatID(room.ID),
		From:      dto.FormatID(userID),
		Candidate: input.Candidate,
	})
	return nil
}

// Close stops every pending ring timer.
func (s *callService) Close() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *callService) privateRoom(ctx context.Context, roomID string) (models.Room, error) {
	room, err := loadRoom(ctx, s.rooms, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !room.IsPrivate() {
		return models.Room{}, ErrRoomNotPrivate
	}
	return room, nil
}

func (s *callService) create(ctx context.Context, roomID, callerID uint) (models.Call, bool, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	if active, err := s.calls.FindActiveByRoom(ctx, roomID); err == nil {
		s.logger.Debug().Uint("room_id", roomID).Uint("call_id", active.ID).Msg("call already active, skipping start")
		return models.Call{}, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Call{}, false, err
	}

	call := models.Call{RoomID: roomID, CallerID: callerID, Status: models.CallStatusRinging}
	if err := s.calls.Create(ctx, &call); err != nil {
		if errors.Is(err, repository.ErrActiveCallExists) {
			return models.Call{}, false, nil
		}
		return models.Call{}, false, err
	}

	observability.ChatCalls().WithLabelValues(string(call.Status)).Inc()
	return call, true, nil
}

// advance applies the transition chosen by decide to the active call of the
// room. Missing calls, rejected transitions and lost races report false.
func (s *callService) advance(ctx context.Context, roomID uint, decide func(models.Call) (models.CallStatus, bool)) (bool, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	call, err := s.calls.FindActiveByRoom(ctx, roomID)
	if err != nil {
		return false, ignoreNotFound(err)
	}

	next, ok := decide(call)
	if !ok || !call.Status.CanTransition(next) {
		return false, nil
	}

	if err := s.calls.UpdateStatus(ctx, call.ID, call.Status, next); err != nil {
		if errors.Is(err, repository.ErrStaleCallStatus) {
			return false, nil
		}
		return false, err
	}

	if !next.Active() {
		s.disarmRingTimeout(call.ID)
	}
	observability.ChatCalls().WithLabelValues(string(next)).Inc()
	s.logger.Debug().Uint("call_id", call.ID).Str("from", string(call.Status)).Str("to", string(next)).Msg("call transitioned")
	return true, nil
}

func (s *callService) relay(ctx context.Context, room models.Room, from uint, event string, payload interface{}) {
	for _, peer := range room.Peers(from) {
		s.emitter.ToUser(ctx, peer.UserID, event, payload)
	}
}

func (s *callService) armRingTimeout(room models.Room, call models.Call) {
	if s.ringTimeout <= 0 {
		return
	}

	timer := time.AfterFunc(s.ringTimeout, func() {
		s.expire(room, call)
	})

	s.timersMu.Lock()
	s.timers[call.ID] = timer
	s.timersMu.Unlock()
}

func (s *callService) disarmRingTimeout(callID uint) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.timers[callID]; ok {
		timer.Stop()
		delete(s.timers, callID)
	}
}

// expire marks a call that is still ringing as NoAnswer and tells both sides.
func (s *callService) expire(room models.Room, call models.Call) {
	s.timersMu.Lock()
	delete(s.timers, call.ID)
	s.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), callExpiryTimeout)
	defer cancel()

	unlock := s.locks.Lock(room.ID)
	err := s.calls.UpdateStatus(ctx, call.ID, models.CallStatusRinging, models.CallStatusNoAnswer)
	unlock()
	if err != nil {
		if !errors.Is(err, repository.ErrStaleCallStatus) {
			s.logger.Warn().Err(err).Uint("call_id", call.ID).Msg("failed to expire ringing call")
		}
		return
	}

	observability.ChatCalls().WithLabelValues(string(models.CallStatusNoAnswer)).Inc()
	payload := dto.CallPeerResponse{RoomID: dto.FormatID(room.ID), From: dto.FormatID(call.CallerID)}
	for _, participant := range room.Participants {
		s.emitter.ToUser(ctx, participant.UserID, dto.EventPrivateCallEnded, payload)
	}
}

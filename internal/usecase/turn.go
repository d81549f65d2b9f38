package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"adherence-agent/internal/dialog"
	"adherence-agent/internal/domain"
	"adherence-agent/internal/persistence"
)

const maxSessionIDLen = 128

// Request types sent by the voice platform.
const (
	RequestLaunch       = "LaunchRequest"
	RequestIntent       = "IntentRequest"
	RequestSessionEnded = "SessionEndedRequest"
)

type ContextStore interface {
	Load(ctx context.Context, sessionID string) (domain.ConversationContext, bool, error)
	Save(ctx context.Context, cc domain.ConversationContext) error
	Delete(ctx context.Context, sessionID string) error
}

// SessionPersister writes the summary of an ended session.
type SessionPersister interface {
	Persist(ctx context.Context, cc domain.ConversationContext) persistence.Result
}

type Dialog interface {
	HandleTurn(ctx context.Context, cc domain.ConversationContext, intent string, slots map[string]string) dialog.TurnResult
}

// TurnService is the turn boundary: it owns the context between turns so
// the dialog itself stays a pure function of its inputs.
type TurnService struct {
	store     ContextStore
	dialog    Dialog
	persister SessionPersister
	logger    *slog.Logger
	now       func() time.Time
}

type TurnOption func(*TurnService)

// WithPersister closes out identified sessions whose context could not be
// saved, so they still leave a summary behind.
func WithPersister(p SessionPersister) TurnOption {
	return func(s *TurnService) {
		s.persister = p
	}
}

type TurnInput struct {
	SessionID   string
	RequestType string
	Intent      string
	Slots       map[string]string
}

type TurnOutput struct {
	SessionID        string
	Prompt           string
	ShouldEndSession bool
	State            domain.State
	Outcome          dialog.Outcome
}

func NewTurnService(store ContextStore, d Dialog, logger *slog.Logger, opts ...TurnOption) (*TurnService, error) {
	if store == nil {
		return nil, errors.New("usecase: context store must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: dialog must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &TurnService{store: store, dialog: d, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TurnService) Handle(ctx context.Context, in TurnInput) (TurnOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if len(sessionID) > maxSessionIDLen {
		return TurnOutput{}, invalidInput("session_id_too_long")
	}

	intent := strings.TrimSpace(in.Intent)
	switch strings.TrimSpace(in.RequestType) {
	case RequestSessionEnded:
		return s.discard(ctx, sessionID)
	case RequestLaunch:
		intent = dialog.IntentLaunch
	case RequestIntent, "":
	default:
		return TurnOutput{}, invalidInput("unknown_request_type")
	}

	cc, err := s.load(ctx, sessionID)
	if err != nil {
		return TurnOutput{}, err
	}

	res := s.dialog.HandleTurn(ctx, cc, intent, in.Slots)
	next := res.Context

	if res.ShouldEndSession {
		if err := s.store.Delete(ctx, next.SessionID); err != nil {
			// Left for the TTL to sweep.
			s.logger.Warn("context delete failed",
				"sessionId", next.SessionID, "patientId", next.PatientID, "reason", "context_store_error", "err", err)
		}
	} else if err := s.store.Save(ctx, next); err != nil {
		s.logger.Error("context save failed",
			"sessionId", next.SessionID, "patientId", next.PatientID, "reason", "context_store_error", "err", err)
		s.abandon(ctx, next)
		return TurnOutput{}, upstreamError("context_save_error", err)
	}

	s.logger.Info("turn handled",
		"sessionId", next.SessionID,
		"state", string(next.State),
		"outcome", string(res.Outcome),
		"ended", res.ShouldEndSession,
	)
	return TurnOutput{
		SessionID:        next.SessionID,
		Prompt:           res.Text,
		ShouldEndSession: res.ShouldEndSession,
		State:            next.State,
		Outcome:          res.Outcome,
	}, nil
}

// load returns the stored context or a fresh one. A missing session ID
// starts a new session with a generated ID.
func (s *TurnService) load(ctx context.Context, sessionID string) (domain.ConversationContext, error) {
	if sessionID == "" {
		return domain.NewConversationContext(newUUID(), s.now()), nil
	}
	cc, found, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.logger.Error("context load failed", "sessionId", sessionID, "reason", "context_store_error", "err", err)
		return domain.ConversationContext{}, upstreamError("context_load_error", err)
	}
	if !found {
		return domain.NewConversationContext(sessionID, s.now()), nil
	}
	return cc, nil
}

// discard drops the context of a session the platform closed. Nothing is
// persisted.
func (s *TurnService) discard(ctx context.Context, sessionID string) (TurnOutput, error) {
	if sessionID == "" {
		return TurnOutput{ShouldEndSession: true, State: domain.StateEnded}, nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("context delete failed", "sessionId", sessionID, "reason", "context_store_error", "err", err)
	}
	s.logger.Info("session closed by platform", "sessionId", sessionID)
	return TurnOutput{SessionID: sessionID, ShouldEndSession: true, State: domain.StateEnded}, nil
}

// abandon ends a session that cannot continue because its context was lost.
// The caller tells the device to hang up, so an identified patient gets the
// summary the dialog would have written at the end.
func (s *TurnService) abandon(ctx context.Context, cc domain.ConversationContext) {
	if s.persister == nil || cc.PatientID == "" || cc.State == domain.StateEnded {
		return
	}
	closed := cc.Clone()
	closed.State = domain.StateEnded
	closed.EndReason = domain.EndUpstreamUnavailable
	closed.PendingMedicationID = ""
	if res := s.persister.Persist(ctx, closed); res.OK() {
		s.logger.Info("abandoned session persisted", "sessionId", cc.SessionID, "summaryId", res.SessionID)
	}
	if err := s.store.Delete(ctx, cc.SessionID); err != nil {
		s.logger.Warn("context delete failed", "sessionId", cc.SessionID, "reason", "context_store_error", "err", err)
	}
}

var newUUID = func() string {
	return uuid.NewString()
}

// Package dialog is the adherence conversation state machine. HandleTurn is
// a total function from (context, intent, slots) to the next context and
// prompt; the only side effects are the identity lookup, the medication
// lookup and the final session write.
package dialog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"adherence-agent/internal/domain"
	"adherence-agent/internal/identity"
	"adherence-agent/internal/normalize"
	"adherence-agent/internal/persistence"
	"adherence-agent/internal/recap"
)

const (
	defaultMaxRetries   = 3
	defaultMaxFallbacks = 5
	defaultCallTimeout  = 3 * time.Second
)

type IdentityResolver interface {
	Resolve(ctx context.Context, identifier string) identity.Result
}

type MedicationLister interface {
	ListMedications(ctx context.Context, patientID string) ([]domain.Medication, error)
}

type SessionPersister interface {
	Persist(ctx context.Context, cc domain.ConversationContext) persistence.Result
}

type Normalizer interface {
	Normalize(raw string, expected normalize.Category) normalize.Token
}

type Renderer interface {
	Render(p recap.Prompt) string
}

// Limits bounds reprompting. MaxRetries applies per state to wrong answers;
// MaxFallbacks applies to uninterpretable input. Exceeding either ends the
// session.
type Limits struct {
	MaxRetries   int
	MaxFallbacks int
	CallTimeout  time.Duration
}

// TurnResult is the output of one turn. Persisted is non-nil only on the
// turn that entered StateEnded with a known patient.
type TurnResult struct {
	Context          domain.ConversationContext
	Prompt           recap.Prompt
	Text             string
	ShouldEndSession bool
	Outcome          Outcome
	Persisted        *persistence.Result
}

type Machine struct {
	resolver   IdentityResolver
	meds       MedicationLister
	persister  SessionPersister
	normalizer Normalizer
	renderer   Renderer
	limits     Limits
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMachine(r IdentityResolver, meds MedicationLister, p SessionPersister, n Normalizer, f Renderer, limits Limits, opts ...Option) (*Machine, error) {
	if r == nil {
		return nil, errors.New("dialog: identity resolver must not be nil")
	}
	if meds == nil {
		return nil, errors.New("dialog: medication lister must not be nil")
	}
	if p == nil {
		return nil, errors.New("dialog: session persister must not be nil")
	}
	if n == nil {
		return nil, errors.New("dialog: normalizer must not be nil")
	}
	if f == nil {
		return nil, errors.New("dialog: renderer must not be nil")
	}
	if limits.MaxRetries <= 0 {
		limits.MaxRetries = defaultMaxRetries
	}
	if limits.MaxFallbacks <= 0 {
		limits.MaxFallbacks = defaultMaxFallbacks
	}
	if limits.CallTimeout <= 0 {
		limits.CallTimeout = defaultCallTimeout
	}
	m := &Machine{
		resolver:   r,
		meds:       meds,
		persister:  p,
		normalizer: n,
		renderer:   f,
		limits:     limits,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// HandleTurn computes the next context and prompt for one utterance. The
// input context is not modified.
func (m *Machine) HandleTurn(ctx context.Context, cc domain.ConversationContext, intent string, slots map[string]string) TurnResult {
	t := &turn{
		m:      m,
		ctx:    ctx,
		cc:     cc.Clone(),
		intent: canonicalIntent(intent),
		slots:  slots,
	}
	if t.cc.State == "" {
		t.cc.State = domain.StateAwaitingIdentifier
	}
	from := t.cc.State

	res := t.step()
	res.Text = m.renderer.Render(res.Prompt)

	m.logger.Debug("dialog turn",
		"sessionId", res.Context.SessionID,
		"intent", t.intent,
		"from", string(from),
		"to", string(res.Context.State),
		"outcome", string(res.Outcome),
	)
	return res
}

// turn holds the working state of a single HandleTurn call.
type turn struct {
	m      *Machine
	ctx    context.Context
	cc     domain.ConversationContext
	intent string
	slots  map[string]string
}

// slot returns the first non-empty value among names.
func (t *turn) slot(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(t.slots[name]); v != "" {
			return v
		}
	}
	return ""
}

// uninterpretable reports input the dialog cannot read as an answer to any
// question: unknown intents, the platform fallback intent and silence.
func (t *turn) uninterpretable() bool {
	if t.intent == IntentFallback || t.intent == IntentSilence {
		return true
	}
	_, known := knownIntents[strings.ToLower(t.intent)]
	return !known
}

// yesNo reads a yes/no answer. ok is false when the input is not an answer
// at all; tok is Unrecognized for answers of the wrong kind.
func (t *turn) yesNo() (tok normalize.Token, ok bool) {
	switch t.intent {
	case IntentYes:
		return normalize.Yes, true
	case IntentNo:
		return normalize.No, true
	case IntentAnswer:
		return t.m.normalizer.Normalize(t.slot(SlotAnswer), normalize.CategoryYesNo), true
	}
	return normalize.Unrecognized, answerIntents[t.intent]
}

func (t *turn) respond(p recap.Prompt, outcome Outcome) TurnResult {
	return TurnResult{Context: t.cc, Prompt: p, Outcome: outcome}
}

// moveTo transitions to next, resetting the counters of the state left.
func (t *turn) moveTo(next domain.State) {
	if next == t.cc.State {
		return
	}
	delete(t.cc.RetryCounts, t.cc.State)
	t.cc.FallbackCount = 0
	t.cc.State = next
}

// retry reprompts within the current state and ends the session once the
// state's counter exceeds the limit.
func (t *turn) retry(p recap.Prompt, outcome Outcome) TurnResult {
	t.cc.RetryCounts[t.cc.State]++
	if t.cc.RetryCounts[t.cc.State] > t.m.limits.MaxRetries {
		return t.end(domain.EndRetryExhausted, recap.Prompt{Key: recap.KeyRetryExhausted}, OutcomeRetryExhausted)
	}
	return t.respond(p, outcome)
}

// fallback repeats the current question without touching the state's retry
// counter. A separate session-wide counter keeps it from looping forever.
func (t *turn) fallback(p recap.Prompt) TurnResult {
	t.cc.FallbackCount++
	if t.cc.FallbackCount > t.m.limits.MaxFallbacks {
		return t.end(domain.EndRetryExhausted, recap.Prompt{Key: recap.KeyRetryExhausted}, OutcomeRetryExhausted)
	}
	return t.respond(p, OutcomeFallback)
}

// end enters StateEnded and writes the session summary when a patient was
// identified. A failed write is already logged by the persister and does
// not change what the caller hears.
func (t *turn) end(reason domain.EndReason, p recap.Prompt, outcome Outcome) TurnResult {
	if reason != domain.EndRetryExhausted {
		delete(t.cc.RetryCounts, t.cc.State)
	}
	t.cc.State = domain.StateEnded
	t.cc.EndReason = reason
	t.cc.PendingMedicationID = ""

	res := TurnResult{Prompt: p, ShouldEndSession: true, Outcome: outcome}
	if t.cc.PatientID != "" {
		written := t.m.persister.Persist(t.ctx, t.cc)
		res.Persisted = &written
	}
	res.Context = t.cc
	return res
}

func (t *turn) record(key, medicationID, value string) {
	t.cc.Answers[key+medicationID] = value
}

func (t *turn) stamp(medicationID string) {
	t.record(domain.AnswerReportedAt, medicationID, t.m.now().UTC().Format(time.RFC3339))
}

func (t *turn) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.ctx, t.m.limits.CallTimeout)
}

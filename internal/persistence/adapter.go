// Package persistence turns an ended conversation into a SessionSummary and
// writes it to the care service.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adherence-agent/internal/domain"
)

// SessionWriter creates a session summary. Implementations must be
// idempotent on the session ID.
type SessionWriter interface {
	CreateSession(ctx context.Context, summary domain.SessionSummary) (string, error)
}

// maxAttempts is the first write plus one retry.
const maxAttempts = 2

// Result is Ok(SessionID) when Err is nil, Failed(Err) otherwise.
type Result struct {
	SessionID string
	Attempts  int
	Err       error
}

func (r Result) OK() bool { return r.Err == nil }

// Adapter writes summaries with one retry after a fixed delay.
type Adapter struct {
	writer     SessionWriter
	timeout    time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Adapter)

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAdapter(w SessionWriter, timeout, retryDelay time.Duration, opts ...Option) (*Adapter, error) {
	if w == nil {
		return nil, errors.New("persistence: session writer must not be nil")
	}
	if timeout <= 0 {
		return nil, errors.New("persistence: timeout must be positive")
	}
	if retryDelay < 0 {
		return nil, errors.New("persistence: retry delay must not be negative")
	}
	a := &Adapter{
		writer:     w,
		timeout:    timeout,
		retryDelay: retryDelay,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Persist writes the summary of cc. A failure is logged for operators and
// returned, but callers must not surface it to the user.
func (a *Adapter) Persist(ctx context.Context, cc domain.ConversationContext) Result {
	if cc.PatientID == "" || cc.SessionID == "" {
		err := errors.New("persistence: context has no patient or session ID")
		a.logger.Error("session not persisted", "sessionId", cc.SessionID, "reason", "missing_identity")
		return Result{Err: err}
	}
	summary := Summarize(cc, a.now())

	var (
		lastErr  error
		attempts int
	)
	for attempts < maxAttempts {
		if attempts > 0 && !a.wait(ctx) {
			break
		}
		attempts++
		id, err := a.write(ctx, summary)
		if err == nil {
			return Result{SessionID: id, Attempts: attempts}
		}
		lastErr = err
		a.logger.Warn("session write attempt failed",
			"sessionId", cc.SessionID, "patientId", cc.PatientID, "attempt", attempts, "err", err)
	}

	a.logger.Error("session not persisted",
		"sessionId", cc.SessionID, "patientId", cc.PatientID, "reason", "write_failed", "err", lastErr)
	return Result{Attempts: attempts, Err: fmt.Errorf("persistence: write session %s: %w", cc.SessionID, lastErr)}
}

func (a *Adapter) write(ctx context.Context, summary domain.SessionSummary) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.writer.CreateSession(ctx, summary)
}

func (a *Adapter) wait(ctx context.Context) bool {
	if a.retryDelay == 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(a.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Summarize materializes the answers of cc into a SessionSummary.
// Medications without a recap answer are omitted.
func Summarize(cc domain.ConversationContext, completedAt time.Time) domain.SessionSummary {
	records := make([]domain.MedicationAdministrationRecord, 0, len(cc.Medications))
	for _, m := range cc.Medications {
		confirmed, ok := cc.Answers[domain.AnswerConfirmed+m.ID]
		if !ok {
			continue
		}
		rec := domain.MedicationAdministrationRecord{
			MedicationID: m.ID,
			Name:         m.Name,
			Dose:         m.Dose,
			Taken:        true,
			ReportedAt:   completedAt.UTC(),
		}
		if ts, err := time.Parse(time.RFC3339, cc.Answers[domain.AnswerReportedAt+m.ID]); err == nil {
			rec.ReportedAt = ts.UTC()
		}
		if confirmed == domain.AnswerNo && cc.Answers[domain.AnswerChanged+m.ID] == domain.AnswerYes {
			rec.Taken = false
			rec.Deviation = cc.Answers[domain.AnswerDetail+m.ID]
		}
		records = append(records, rec)
	}
	return domain.SessionSummary{
		PatientID:                cc.PatientID,
		SessionID:                cc.SessionID,
		StartedAt:                cc.StartedAt.UTC(),
		CompletedAt:              completedAt.UTC(),
		MedicationAdministration: records,
		EducationTopic:           cc.EducationTopic,
		EndReason:                cc.EndReason,
	}
}

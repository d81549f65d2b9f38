package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adherence-agent/internal/domain"
)

type fakeWriter struct {
	errs     []error
	calls    int
	received []domain.SessionSummary
	stored   map[string]domain.SessionSummary
	block    bool
}

func (f *fakeWriter) CreateSession(ctx context.Context, s domain.SessionSummary) (string, error) {
	f.calls++
	f.received = append(f.received, s)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return "", f.errs[f.calls-1]
	}
	if f.stored == nil {
		f.stored = map[string]domain.SessionSummary{}
	}
	f.stored[s.PatientID+"/"+s.SessionID] = s
	return s.SessionID, nil
}

var (
	started = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ended   = started.Add(3 * time.Minute)
)

func fixedClock() time.Time { return ended }

func endedContext() domain.ConversationContext {
	cc := domain.NewConversationContext("sess-1", started)
	cc.State = domain.StateEnded
	cc.PatientID = "P001"
	cc.Medications = []domain.Medication{
		{ID: "MED001", Name: "Lisinopril", Dose: "10mg"},
		{ID: "MED002", Name: "Metformin", Dose: "500mg"},
	}
	cc.Answers[domain.AnswerConfirmed+"MED001"] = domain.AnswerYes
	cc.Answers[domain.AnswerReportedAt+"MED001"] = started.Add(time.Minute).Format(time.RFC3339)
	cc.EducationTopic = "diet"
	cc.EndReason = domain.EndCompleted
	return cc
}

func newTestAdapter(t *testing.T, w SessionWriter) *Adapter {
	t.Helper()
	a, err := NewAdapter(w, 50*time.Millisecond, time.Millisecond, WithClock(fixedClock))
	require.NoError(t, err)
	return a
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(nil, time.Second, 0)
	require.Error(t, err)
	_, err = NewAdapter(&fakeWriter{}, 0, 0)
	require.Error(t, err)
	_, err = NewAdapter(&fakeWriter{}, time.Second, -time.Second)
	require.Error(t, err)
}

func TestSummarize_Confirmed(t *testing.T) {
	got := Summarize(endedContext(), ended)
	require.Equal(t, domain.SessionSummary{
		PatientID:   "P001",
		SessionID:   "sess-1",
		StartedAt:   started,
		CompletedAt: ended,
		MedicationAdministration: []domain.MedicationAdministrationRecord{
			{MedicationID: "MED001", Name: "Lisinopril", Dose: "10mg", Taken: true, ReportedAt: started.Add(time.Minute)},
		},
		EducationTopic: "diet",
		EndReason:      domain.EndCompleted,
	}, got)
}

func TestSummarize_Deviation(t *testing.T) {
	cc := endedContext()
	cc.Answers[domain.AnswerConfirmed+"MED001"] = domain.AnswerNo
	cc.Answers[domain.AnswerChanged+"MED001"] = domain.AnswerYes
	cc.Answers[domain.AnswerDetail+"MED001"] = "took half a tablet"

	rec := Summarize(cc, ended).MedicationAdministration[0]
	require.False(t, rec.Taken)
	require.Equal(t, "took half a tablet", rec.Deviation)
}

func TestSummarize_RejectedRecapWithoutChange(t *testing.T) {
	cc := endedContext()
	cc.Answers[domain.AnswerConfirmed+"MED001"] = domain.AnswerNo
	cc.Answers[domain.AnswerChanged+"MED001"] = domain.AnswerNo

	rec := Summarize(cc, ended).MedicationAdministration[0]
	require.True(t, rec.Taken)
	require.Empty(t, rec.Deviation)
}

func TestSummarize_AbandonedHasNoRecords(t *testing.T) {
	cc := domain.NewConversationContext("sess-2", started)
	cc.PatientID = "P001"
	cc.EndReason = domain.EndStopped

	got := Summarize(cc, ended)
	require.NotNil(t, got.MedicationAdministration)
	require.Empty(t, got.MedicationAdministration)
	require.Equal(t, domain.EndStopped, got.EndReason)
}

func TestSummarize_MissingReportedAtUsesCompletion(t *testing.T) {
	cc := endedContext()
	delete(cc.Answers, domain.AnswerReportedAt+"MED001")
	require.Equal(t, ended, Summarize(cc, ended).MedicationAdministration[0].ReportedAt)
}

func TestPersist_Success(t *testing.T) {
	w := &fakeWriter{}
	res := newTestAdapter(t, w).Persist(context.Background(), endedContext())
	require.True(t, res.OK())
	require.Equal(t, "sess-1", res.SessionID)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 1, w.calls)
}

func TestPersist_RetriesOnceThenSucceeds(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("connection reset")}}
	res := newTestAdapter(t, w).Persist(context.Background(), endedContext())
	require.True(t, res.OK())
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 2, w.calls)
	require.Equal(t, w.received[0], w.received[1], "retry must resend the same summary")
}

func TestPersist_FailsAfterSecondAttempt(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("boom"), errors.New("boom again")}}
	res := newTestAdapter(t, w).Persist(context.Background(), endedContext())
	require.False(t, res.OK())
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 2, w.calls)
	require.ErrorContains(t, res.Err, "boom again")
}

func TestPersist_TimeoutCountsAsFailure(t *testing.T) {
	w := &fakeWriter{block: true}
	start := time.Now()
	res := newTestAdapter(t, w).Persist(context.Background(), endedContext())
	require.False(t, res.OK())
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestPersist_CancelledContextSkipsRetry(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("boom")}}
	a, err := NewAdapter(w, time.Second, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.Persist(ctx, endedContext())
	require.False(t, res.OK())
	require.Equal(t, 1, w.calls)
	require.Equal(t, 1, res.Attempts)
}

func TestPersist_IdempotentOnSessionID(t *testing.T) {
	w := &fakeWriter{}
	a := newTestAdapter(t, w)
	cc := endedContext()

	require.True(t, a.Persist(context.Background(), cc).OK())
	require.True(t, a.Persist(context.Background(), cc).OK())
	require.Len(t, w.stored, 1)
}

func TestPersist_RequiresPatient(t *testing.T) {
	w := &fakeWriter{}
	cc := domain.NewConversationContext("sess-3", started)
	res := newTestAdapter(t, w).Persist(context.Background(), cc)
	require.False(t, res.OK())
	require.Zero(t, w.calls)
}

package careapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"adherence-agent/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeService emulates the care data service with an in-memory store.
type fakeService struct {
	mu          sync.Mutex
	patients    []domain.Patient
	medications map[string][]domain.Medication
	sessions    map[string]map[string]json.RawMessage
	apiKey      string
	postCount   int
}

func newFakeService() *fakeService {
	return &fakeService{
		patients: []domain.Patient{
			{ID: "P001", PairingCode: "EC123", IsActive: true},
			{ID: "P002", PairingCode: "OLD999", IsActive: false},
		},
		medications: map[string][]domain.Medication{
			"P001": {{ID: "MED001", PatientID: "P001", Name: "Lisinopril", Dose: "10mg"}},
		},
		sessions: map[string]map[string]json.RawMessage{},
	}
}

func (f *fakeService) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if f.apiKey != "" && req.Header.Get("X-Api-Key") != f.apiKey {
				http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/patients", func(w http.ResponseWriter, req *http.Request) {
		code := req.URL.Query().Get("pairingCode")
		out := patientsResponse{Patients: []domain.Patient{}}
		for _, p := range f.patients {
			if p.PairingCode == code {
				out.Patients = append(out.Patients, p)
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Get("/patients/{id}/medications", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		meds, ok := f.medications[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Patient not found"})
			return
		}
		writeJSON(w, http.StatusOK, medicationsResponse{PatientID: id, Medications: meds})
	})
	r.Post("/patients/{id}/sessions", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.postCount++
		id := chi.URLParam(req, "id")
		var body struct {
			SessionID string `json:"sessionId"`
		}
		raw := json.RawMessage{}
		if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
			return
		}
		_ = json.Unmarshal(raw, &body)
		if f.sessions[id] == nil {
			f.sessions[id] = map[string]json.RawMessage{}
		}
		f.sessions[id][body.SessionID] = raw
		writeJSON(w, http.StatusOK, createSessionResponse{Message: "Session saved successfully", SessionID: body.SessionID})
	})
	r.Get("/patients/{id}/sessions", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := chi.URLParam(req, "id")
		out := struct {
			PatientID string            `json:"patient_id"`
			Sessions  []json.RawMessage `json:"sessions"`
		}{PatientID: id, Sessions: []json.RawMessage{}}
		for _, s := range f.sessions[id] {
			out.Sessions = append(out.Sessions, s)
		}
		writeJSON(w, http.StatusOK, out)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(&http.Client{Timeout: 2 * time.Second})}, opts...)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func startFake(t *testing.T, f *fakeService) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")

	_, err = NewClient("not a url")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid base URL")

	c, err := NewClient("http://localhost:8000/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", c.baseURL)
}

func TestPatientPath_EscapesID(t *testing.T) {
	require.Equal(t, "/patients/P%2F1/sessions", patientPath("P/1", "/sessions"))
}

func TestFindPatientsByPairingCode(t *testing.T) {
	srv := startFake(t, newFakeService())
	c := newTestClient(t, srv)

	patients, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.NoError(t, err)
	require.Len(t, patients, 1)
	require.Equal(t, "P001", patients[0].ID)
	require.True(t, patients[0].IsActive)

	patients, err = c.FindPatientsByPairingCode(context.Background(), "NOPE")
	require.NoError(t, err)
	require.Empty(t, patients)
}

func TestFindPatientsByPairingCode_404IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	patients, err := newTestClient(t, srv).FindPatientsByPairingCode(context.Background(), "X")
	require.NoError(t, err)
	require.Empty(t, patients)
}

func TestListMedications(t *testing.T) {
	srv := startFake(t, newFakeService())
	c := newTestClient(t, srv)

	meds, err := c.ListMedications(context.Background(), "P001")
	require.NoError(t, err)
	require.Equal(t, []domain.Medication{{ID: "MED001", PatientID: "P001", Name: "Lisinopril", Dose: "10mg"}}, meds)

	_, err = c.ListMedications(context.Background(), "P404")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.ListMedications(context.Background(), " ")
	require.Error(t, err)
}

func TestCreateSession_RoundTrip(t *testing.T) {
	fake := newFakeService()
	srv := startFake(t, fake)
	c := newTestClient(t, srv)

	started := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	summary := domain.SessionSummary{
		PatientID:   "P001",
		SessionID:   "sess-1",
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Minute),
		MedicationAdministration: []domain.MedicationAdministrationRecord{
			{MedicationID: "MED001", Name: "Lisinopril", Dose: "10mg", Taken: true, ReportedAt: started.Add(time.Minute)},
		},
		EducationTopic: "diet",
		EndReason:      domain.EndCompleted,
	}
	id, err := c.CreateSession(context.Background(), summary)
	require.NoError(t, err)
	require.Equal(t, "sess-1", id)

	// Same session ID twice must not create a second record.
	_, err = c.CreateSession(context.Background(), summary)
	require.NoError(t, err)
	require.Equal(t, 2, fake.postCount)

	sessions, err := c.ListSessions(context.Background(), "P001")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "sess-1", sessions[0].SessionID)
	require.Equal(t, "P001", sessions[0].PatientID)
	require.Equal(t, "diet", sessions[0].EducationTopic)
	require.Len(t, sessions[0].MedicationAdministration, 1)
	require.True(t, sessions[0].MedicationAdministration[0].Taken)
}

func TestCreateSession_BodyShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/patients/P001/sessions", r.URL.Path)
		require.Equal(t, "sess-9", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).CreateSession(context.Background(), domain.SessionSummary{PatientID: "P001", SessionID: "sess-9"})
	require.NoError(t, err)
	require.Equal(t, "sess-9", id)
	require.Equal(t, "sess-9", got["sessionId"])
	require.Contains(t, got, "startedAt")
	require.Contains(t, got, "completedAt")
	require.Contains(t, got, "medicationAdministration")
	require.NotContains(t, got, "PatientID")
}

func TestCreateSession_ConflictIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).CreateSession(context.Background(), domain.SessionSummary{PatientID: "P001", SessionID: "dup"})
	require.NoError(t, err)
	require.Equal(t, "dup", id)
}

func TestCreateSession_RequiresIDs(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	require.NoError(t, err)
	_, err = c.CreateSession(context.Background(), domain.SessionSummary{SessionID: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestCreateSession_500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"boom"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).CreateSession(context.Background(), domain.SessionSummary{PatientID: "P001", SessionID: "s"})
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.HTTPStatusCode())
	require.Contains(t, err.Error(), "500")
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ListMedications(context.Background(), "P001")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.Error(t, err)
}

func TestClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).ListMedications(ctx, "P001")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_APIKeyFromParamStore(t *testing.T) {
	fake := newFakeService()
	fake.apiKey = "k-123"
	srv := startFake(t, fake)

	g := &fakeGetter{val: `{"token":"k-123"}`}
	c := newTestClient(t, srv, WithKeyParameter(g, "/adherence/care-api-key"))

	_, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.NoError(t, err)
	_, err = c.ListMedications(context.Background(), "P001")
	require.NoError(t, err)
	require.Equal(t, 1, g.calls, "parameter store must only be read once per process")
}

func TestClient_APIKeyFetchFailureIsRetried(t *testing.T) {
	fake := newFakeService()
	fake.apiKey = "k-123"
	srv := startFake(t, fake)

	g := &fakeGetter{err: errors.New("throttled")}
	c := newTestClient(t, srv, WithKeyParameter(g, "/adherence/care-api-key"))

	_, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.Error(t, err)

	g.err = nil
	g.val = `{"token":"k-123"}`
	patients, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.NoError(t, err)
	require.Len(t, patients, 1)
	_, err = c.ListMedications(context.Background(), "P001")
	require.NoError(t, err)
	require.Equal(t, 2, g.calls)
}

func TestClient_StaticAPIKeyWins(t *testing.T) {
	fake := newFakeService()
	fake.apiKey = "static"
	srv := startFake(t, fake)

	g := &fakeGetter{val: `{"token":"other"}`}
	c := newTestClient(t, srv, WithAPIKey("static"), WithKeyParameter(g, "/p"))
	_, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.NoError(t, err)
	require.Zero(t, g.calls)
}

func TestClient_WrongAPIKey(t *testing.T) {
	fake := newFakeService()
	fake.apiKey = "right"
	srv := startFake(t, fake)

	c := newTestClient(t, srv, WithAPIKey("wrong"))
	_, err := c.FindPatientsByPairingCode(context.Background(), "EC123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name   string
		getter Getter
		param  string
		want   string
		errSub string
	}{
		{name: "json token", getter: &fakeGetter{val: `{"token":"k"}`}, param: "/p", want: "k"},
		{name: "missing field", getter: &fakeGetter{val: `{"other":"v"}`}, param: "/p", errSub: "API key is empty"},
		{name: "malformed", getter: &fakeGetter{val: `{"broken`}, param: "/p", errSub: "unmarshal"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/p", errSub: "ssm unavailable"},
		{name: "nil getter", getter: nil, param: "/p", errSub: "nil"},
		{name: "empty name", getter: &fakeGetter{val: `{"token":"k"}`}, param: " ", errSub: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := fetchAPIKeyFromParamStore(context.Background(), tc.getter, tc.param)
			if tc.errSub != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errSub)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

// Package careapi is a client for the patient/medication/session data service.
package careapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"adherence-agent/internal/domain"
)

const defaultTimeout = 3 * time.Second

// ErrNotFound is returned when the service answers 404 for a resource.
var ErrNotFound = errors.New("careapi: not found")

type patientsResponse struct {
	Patients []domain.Patient `json:"patients"`
}

type medicationsResponse struct {
	PatientID   string              `json:"patient_id"`
	Medications []domain.Medication `json:"medications"`
}

type createSessionResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type sessionsResponse struct {
	PatientID string                  `json:"patient_id"`
	Sessions  []domain.SessionSummary `json:"sessions"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("careapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the care data service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	getter     Getter
	keyParam   string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets a static API key; the parameter store is then never read.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		c.apiKey = key
	}
}

// WithKeyParameter reads the API key from the named parameter on first use.
func WithKeyParameter(g Getter, name string) Option {
	return func(c *Client) {
		c.getter = g
		c.keyParam = strings.TrimSpace(name)
	}
}

// NewClient creates a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("careapi: base URL must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("careapi: invalid base URL: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey fetches the key until one fetch succeeds and caches it for
// the process lifetime. Failed fetches are retried on the next request. No
// key source at all means unauthenticated requests.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" || c.getter == nil {
		return c.apiKey, nil
	}
	key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.keyParam)
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func patientPath(patientID, suffix string) string {
	return "/patients/" + url.PathEscape(patientID) + suffix
}

// FindPatientsByPairingCode returns every patient registered under code,
// active or not. An unknown code yields an empty slice.
func (c *Client) FindPatientsByPairingCode(ctx context.Context, code string) ([]domain.Patient, error) {
	q := url.Values{}
	q.Set("pairingCode", code)

	var payload patientsResponse
	err := c.getJSON(ctx, "/patients?"+q.Encode(), &payload)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("careapi: find patients: %w", err)
	}
	return payload.Patients, nil
}

// ListMedications returns the active medications on file for a patient.
func (c *Client) ListMedications(ctx context.Context, patientID string) ([]domain.Medication, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, errors.New("careapi: patient ID is required")
	}
	var payload medicationsResponse
	if err := c.getJSON(ctx, patientPath(patientID, "/medications"), &payload); err != nil {
		return nil, fmt.Errorf("careapi: list medications: %w", err)
	}
	return payload.Medications, nil
}

// CreateSession writes a session summary. The service is idempotent on the
// session ID; a 409 means the summary already exists and counts as success.
func (c *Client) CreateSession(ctx context.Context, summary domain.SessionSummary) (string, error) {
	if strings.TrimSpace(summary.PatientID) == "" || strings.TrimSpace(summary.SessionID) == "" {
		return "", errors.New("careapi: patient ID and session ID are required")
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("careapi: marshal session: %w", err)
	}

	u := c.baseURL + patientPath(summary.PatientID, "/sessions")
	req, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Idempotency-Key", summary.SessionID)

	raw, err := c.doJSONRequest(req, u)
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return summary.SessionID, nil
	}
	if err != nil {
		return "", fmt.Errorf("careapi: create session: %w", err)
	}

	var payload createSessionResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return "", fmt.Errorf("careapi: decode create session response: %w", err)
		}
	}
	if payload.SessionID == "" {
		return summary.SessionID, nil
	}
	return payload.SessionID, nil
}

// ListSessions returns the persisted summaries for a patient.
func (c *Client) ListSessions(ctx context.Context, patientID string) ([]domain.SessionSummary, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, errors.New("careapi: patient ID is required")
	}
	var payload sessionsResponse
	if err := c.getJSON(ctx, patientPath(patientID, "/sessions"), &payload); err != nil {
		return nil, fmt.Errorf("careapi: list sessions: %w", err)
	}
	for i := range payload.Sessions {
		payload.Sessions[i].PatientID = patientID
	}
	return payload.Sessions, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	u := c.baseURL + path
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("careapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	return req, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("careapi: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("careapi: key parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("careapi: fetch key from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("careapi: unmarshal paramstore key value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("careapi: API key is empty")
	}
	return tp.Token, nil
}

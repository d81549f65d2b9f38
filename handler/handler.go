package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"adherence-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	apology           = "I'm sorry, something went wrong on my side. Please try again later. Goodbye."
)

type TurnHandler interface {
	Handle(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

type Handler struct {
	uc TurnHandler
}

type turnRequest struct {
	SessionID   string            `json:"sessionId"`
	RequestType string            `json:"requestType"`
	Intent      string            `json:"intent"`
	Slots       map[string]string `json:"slots"`
}

type turnResponse struct {
	SessionID        string `json:"sessionId"`
	Prompt           string `json:"prompt"`
	ShouldEndSession bool   `json:"shouldEndSession"`
	State            string `json:"state"`
}

// errorResponse still carries something speakable so the device never goes
// silent.
type errorResponse struct {
	Error            string `json:"error"`
	Prompt           string `json:"prompt"`
	ShouldEndSession bool   `json:"shouldEndSession"`
}

func NewHandler(uc TurnHandler) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: turn usecase must not be nil")
	}
	return &Handler{uc: uc}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlationId", correlationID)

	var body turnRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		logger.Warn("invalid request body", "err", err)
		return respond(http.StatusBadRequest, correlationID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Prompt: apology,
		}), nil
	}

	out, err := h.uc.Handle(ctx, usecase.TurnInput{
		SessionID:   body.SessionID,
		RequestType: body.RequestType,
		Intent:      body.Intent,
		Slots:       body.Slots,
	})
	if err != nil {
		status, code := classify(err)
		var ucErr *usecase.Error
		end := !errors.As(err, &ucErr) || ucErr.EndsSession()
		logger.Error("turn failed", "sessionId", body.SessionID, "code", string(code), "err", err)
		return respond(status, correlationID, errorResponse{
			Error:            string(code),
			Prompt:           apology,
			ShouldEndSession: end,
		}), nil
	}

	return respond(http.StatusOK, correlationID, turnResponse{
		SessionID:        out.SessionID,
		Prompt:           out.Prompt,
		ShouldEndSession: out.ShouldEndSession,
		State:            string(out.State),
	}), nil
}

func classify(err error) (int, usecase.ErrorCode) {
	code := usecase.CodeOf(err)
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, code
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, code
	}
	return http.StatusInternalServerError, code
}

func respond(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

// headerValue looks a header up case-insensitively; API Gateway passes
// headers through with the client's casing.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

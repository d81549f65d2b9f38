// Package identity resolves a spoken pairing code to an active patient.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"adherence-agent/internal/domain"
)

// Directory looks patients up by pairing code.
type Directory interface {
	FindPatientsByPairingCode(ctx context.Context, code string) ([]domain.Patient, error)
}

// Result is the outcome of a lookup. Found is false for every failure;
// Unavailable additionally marks failures caused by the directory itself
// rather than by the identifier.
type Result struct {
	Found       bool
	PatientID   string
	Unavailable bool
}

// Resolver wraps the directory with a bounded per-call timeout.
type Resolver struct {
	dir     Directory
	timeout time.Duration
	logger  *slog.Logger
}

func NewResolver(dir Directory, timeout time.Duration, logger *slog.Logger) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("identity: directory must not be nil")
	}
	if timeout <= 0 {
		return nil, errors.New("identity: timeout must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, timeout: timeout, logger: logger}, nil
}

// Resolve never returns an error. Identifiers are not format-checked; an
// identifier that matches nothing is simply not found.
func (r *Resolver) Resolve(ctx context.Context, identifier string) Result {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	patients, err := r.dir.FindPatientsByPairingCode(ctx, identifier)
	if err != nil {
		r.logger.Error("identity lookup unavailable", "reason", "directory_error", "err", err)
		return Result{Unavailable: true}
	}

	// The directory may ignore the code filter and return everyone.
	want := canonicalCode(identifier)
	var active []domain.Patient
	for _, p := range patients {
		if p.IsActive && p.ID != "" && canonicalCode(p.PairingCode) == want {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return Result{}
	case 1:
		return Result{Found: true, PatientID: active[0].ID}
	default:
		r.logger.Warn("pairing code matches several active patients", "count", len(active))
		return Result{}
	}
}

// canonicalCode upper-cases a pairing code and drops separators so that
// "ec-123" and "EC123" compare equal.
func canonicalCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', ',', '_', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(code))
}

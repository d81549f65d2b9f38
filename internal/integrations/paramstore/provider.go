package paramstore

import (
	"context"
	"errors"

	"github.com/knadh/koanf/maps"
)

type pathReader interface {
	GetParametersByPath(ctx context.Context, path string) (map[string]string, error)
}

// Provider exposes the parameters below a path as a koanf provider, so SSM
// can overlay the file configuration. Nested parameter names become
// nested keys.
type Provider struct {
	ctx    context.Context
	reader pathReader
	path   string
}

// NewProvider returns a Provider reading parameters below path.
func NewProvider(ctx context.Context, r pathReader, path string) *Provider {
	return &Provider{ctx: ctx, reader: r, path: path}
}

// ReadBytes is not supported; the provider yields a parsed map.
func (p *Provider) ReadBytes() ([]byte, error) {
	return nil, errors.New("paramstore: provider does not support ReadBytes")
}

// Read returns the parameters as a nested map.
func (p *Provider) Read() (map[string]interface{}, error) {
	if p.reader == nil {
		return nil, errors.New("paramstore: provider has no reader")
	}
	params, err := p.reader.GetParametersByPath(p.ctx, p.path)
	if err != nil {
		return nil, err
	}
	flat := make(map[string]interface{}, len(params))
	for name, value := range params {
		flat[name] = value
	}
	return maps.Unflatten(flat, "/"), nil
}

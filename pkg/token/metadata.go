package token

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/cache"

	"github.com/luxfi/dax/pkg/scale"
)

// Metadata memoizes per-token WAD scalers so hot quote paths do not
// ask the collaborator for decimals on every call.
type Metadata struct {
	backend Backend
	scalers *cache.LRU[string, *uint256.Int]
}

// NewMetadata creates a metadata cache over a token backend
func NewMetadata(backend Backend, size int) *Metadata {
	return &Metadata{
		backend: backend,
		scalers: cache.NewLRU[string, *uint256.Int](size),
	}
}

// Scaler resolves the WAD scaler for a token, hitting the backend
// only on a cache miss.
func (m *Metadata) Scaler(ctx context.Context, token string) (*uint256.Int, error) {
	if s, ok := m.scalers.Get(token); ok {
		return s, nil
	}

	decimals, err := m.backend.Decimals(ctx, token)
	if err != nil {
		return nil, err
	}
	s, err := scale.ScalerFor(decimals)
	if err != nil {
		return nil, err
	}

	m.scalers.Put(token, s)
	return s, nil
}

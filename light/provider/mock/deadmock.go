package mock

import (
	"context"
	"errors"

	"github.com/glint-chain/glintd/light/provider"
	"github.com/glint-chain/glintd/types"
)

// Deadmock is a provider that never responds. It is used to test how the
// light client handles dead witnesses.
type Deadmock struct {
	chainID string
}

var _ provider.Provider = (*Deadmock)(nil)

// NewDeadMock creates a mock provider that always errors.
func NewDeadMock(chainID string) *Deadmock {
	return &Deadmock{chainID: chainID}
}

func (p *Deadmock) ChainID() string { return p.chainID }

func (p *Deadmock) String() string { return "deadMock" }

func (p *Deadmock) LightBlock(_ context.Context, height int64) (*types.LightBlock, error) {
	return nil, errors.New("no response from provider")
}

func (p *Deadmock) ReportEvidence(_ context.Context, ev types.Evidence) error {
	return errors.New("no response from provider")
}

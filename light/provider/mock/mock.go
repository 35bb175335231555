package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/glint-chain/glintd/light/provider"
	"github.com/glint-chain/glintd/types"
)

// Mock serves a fixed set of headers and validator sets from memory. It is
// used to test the light client without a running node.
type Mock struct {
	chainID string

	mtx              sync.Mutex
	headers          map[int64]*types.SignedHeader
	vals             map[int64]*types.ValidatorSet
	evidenceToReport map[string]types.Evidence // hash => evidence
	latestHeight     int64
	fetches          map[int64]int // height => number of LightBlock calls
}

var _ provider.Provider = (*Mock)(nil)

// New creates a mock provider with the given set of headers and validator
// sets. The validator set for height h+1 must be present for every header at
// height h that the light client will verify from.
func New(chainID string, headers map[int64]*types.SignedHeader, vals map[int64]*types.ValidatorSet) *Mock {
	height := int64(0)
	for h := range headers {
		if h > height {
			height = h
		}
	}
	return &Mock{
		chainID:          chainID,
		headers:          headers,
		vals:             vals,
		evidenceToReport: make(map[string]types.Evidence),
		latestHeight:     height,
		fetches:          make(map[int64]int),
	}
}

// ChainID returns the blockchain ID.
func (p *Mock) ChainID() string {
	return p.chainID
}

func (p *Mock) String() string {
	var headers strings.Builder
	for _, h := range p.headers {
		fmt.Fprintf(&headers, " %d:%X", h.Height, h.Hash())
	}

	var vals strings.Builder
	for _, v := range p.vals {
		fmt.Fprintf(&vals, " %X", v.Hash())
	}

	return fmt.Sprintf("Mock{headers: %s, vals: %v}", headers.String(), vals.String())
}

// LightBlock returns the light block at height, or the latest one for
// height 0.
func (p *Mock) LightBlock(ctx context.Context, height int64) (*types.LightBlock, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if height > p.latestHeight {
		return nil, provider.ErrHeightTooHigh
	}
	if height == 0 {
		height = p.latestHeight
	}

	p.fetches[height]++

	sh, ok := p.headers[height]
	if !ok {
		return nil, provider.ErrLightBlockNotFound
	}

	lb := &types.LightBlock{
		SignedHeader:     sh,
		ValidatorSet:     p.vals[height],
		NextValidatorSet: p.vals[height+1],
		Provider:         "mock",
	}
	if err := lb.ValidateBasic(sh.ChainID); err != nil {
		return nil, provider.ErrBadLightBlock{Reason: err}
	}

	return lb, nil
}

// ReportEvidence records the evidence for later inspection with HasEvidence.
func (p *Mock) ReportEvidence(_ context.Context, ev types.Evidence) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.evidenceToReport[string(ev.Hash())] = ev
	return nil
}

// HasEvidence reports whether ev was reported to this provider.
func (p *Mock) HasEvidence(ev types.Evidence) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	_, ok := p.evidenceToReport[string(ev.Hash())]
	return ok
}

// FetchCount returns the number of times the light block at height was
// requested.
func (p *Mock) FetchCount(height int64) int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.fetches[height]
}

// Copy returns a copy of the mock serving the same blocks, with fresh
// evidence and fetch-count state.
func (p *Mock) Copy() *Mock {
	return New(p.chainID, p.headers, p.vals)
}

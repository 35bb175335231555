package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/glint-chain/glintd/light/provider"
	rpcclient "github.com/glint-chain/glintd/rpc/client"
	"github.com/glint-chain/glintd/types"
)

var (
	// the node's RPC does not return structured errors for missing heights,
	// so we have to match the message
	regexpTooHigh       = regexp.MustCompile(`height \d+ must be less than or equal to`)
	regexpMissingHeight = regexp.MustCompile(`height \d+ is not available`)

	maxRetryAttempts = 5
)

// http provider uses an RPC client to obtain the necessary information.
type http struct {
	chainID string
	client  *rpcclient.Client
}

var _ provider.Provider = (*http)(nil)

// New creates a HTTP provider, which is using the rpcclient.Client under the
// hood. If no scheme is provided in the remote URL, http will be used by
// default.
func New(chainID, remote string) (provider.Provider, error) {
	client, err := rpcclient.New(remote)
	if err != nil {
		return nil, err
	}
	return NewWithClient(chainID, client), nil
}

// NewWithClient allows you to provide a custom client.
func NewWithClient(chainID string, client *rpcclient.Client) provider.Provider {
	return &http{
		client:  client,
		chainID: chainID,
	}
}

// ChainID returns a chainID this provider was configured with.
func (p *http) ChainID() string {
	return p.chainID
}

func (p *http) String() string {
	return fmt.Sprintf("http{%s}", p.client.Remote())
}

// LightBlock fetches a LightBlock at the given height and checks the
// chainID matches. To verify headers further than one height away, the
// validator sets at both the given height and the next height are fetched.
func (p *http) LightBlock(ctx context.Context, height int64) (*types.LightBlock, error) {
	h, err := validateHeight(height)
	if err != nil {
		return nil, provider.ErrBadLightBlock{Reason: err}
	}

	sh, err := p.signedHeader(ctx, h)
	if err != nil {
		return nil, err
	}

	if height != 0 && sh.Height != height {
		return nil, provider.ErrBadLightBlock{
			Reason: fmt.Errorf("expected height %d, got height %d", height, sh.Height),
		}
	}

	vs, err := p.validatorSet(ctx, &sh.Height)
	if err != nil {
		return nil, err
	}

	nextHeight := sh.Height + 1
	nvs, err := p.validatorSet(ctx, &nextHeight)
	if err != nil {
		return nil, err
	}

	lb := &types.LightBlock{
		SignedHeader:     sh,
		ValidatorSet:     vs,
		NextValidatorSet: nvs,
		Provider:         p.String(),
	}

	if err := lb.ValidateBasic(p.chainID); err != nil {
		return nil, provider.ErrBadLightBlock{Reason: err}
	}

	return lb, nil
}

// ReportEvidence calls `/broadcast_evidence` endpoint.
func (p *http) ReportEvidence(ctx context.Context, ev types.Evidence) error {
	_, err := p.client.BroadcastEvidence(ctx, ev)
	return err
}

func (p *http) validatorSet(ctx context.Context, height *int64) (*types.ValidatorSet, error) {
	// Since the malicious node could report a massive number of pages, making
	// us spend a considerable time iterating, we restrict the number of pages
	// here.
	const maxPages = 100

	var (
		perPage = 100
		vals    = []*types.Validator{}
		page    = 1
		total   = -1
	)

	for len(vals) != total && page <= maxPages {
		for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
			res, err := p.client.Validators(ctx, height, &page, &perPage)
			switch {
			case err == nil:
				// Validate response.
				if len(res.Validators) == 0 {
					return nil, provider.ErrBadLightBlock{
						Reason: fmt.Errorf("validator set is empty (height: %d, page: %d, per_page: %d)",
							*height, page, perPage),
					}
				}
				if res.Total <= 0 {
					return nil, provider.ErrBadLightBlock{
						Reason: fmt.Errorf("total number of vals is <= 0: %d (height: %d, page: %d, per_page: %d)",
							res.Total, *height, page, perPage),
					}
				}

				total = res.Total
				vals = append(vals, res.Validators...)
				page++

			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				// if we have exceeded retry attempts or the context was
				// canceled, we bubble the error up
				return nil, err

			case regexpTooHigh.MatchString(err.Error()):
				return nil, provider.ErrHeightTooHigh

			case regexpMissingHeight.MatchString(err.Error()):
				return nil, provider.ErrLightBlockNotFound

			default:
				// If we don't know the error, give the node a chance to
				// recover before the next attempt.
				if attempt == maxRetryAttempts {
					return nil, provider.ErrNoResponse
				}
				time.Sleep(backoffTimeout(uint16(attempt)))
				continue
			}
			break
		}
	}

	// NewValidatorSet panics on duplicate addresses, which a malicious node
	// can produce by repeating validators across pages.
	if err := validateUniqueValidators(vals); err != nil {
		return nil, provider.ErrBadLightBlock{Reason: err}
	}

	valSet := types.NewValidatorSet(vals)
	if err := valSet.ValidateBasic(); err != nil {
		return nil, provider.ErrBadLightBlock{Reason: err}
	}
	return valSet, nil
}

func validateUniqueValidators(vals []*types.Validator) error {
	seen := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		addr := string(v.Address)
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("duplicate validator address %X", v.Address)
		}
		seen[addr] = struct{}{}
	}
	return nil
}

func (p *http) signedHeader(ctx context.Context, height *int64) (*types.SignedHeader, error) {
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		res, err := p.client.Commit(ctx, height)
		switch {
		case err == nil:
			return &res.SignedHeader, nil

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err

		case regexpTooHigh.MatchString(err.Error()):
			return nil, provider.ErrHeightTooHigh

		case regexpMissingHeight.MatchString(err.Error()):
			return nil, provider.ErrLightBlockNotFound
		}

		time.Sleep(backoffTimeout(uint16(attempt)))
	}
	return nil, provider.ErrNoResponse
}

func validateHeight(height int64) (*int64, error) {
	if height < 0 {
		return nil, errors.New("negative height")
	}

	h := &height
	if height == 0 {
		h = nil
	}
	return h, nil
}

// exponential backoff (with jitter)
// 0.5s -> 2s -> 4.5s -> 8s -> 12.5s with 1s variation
func backoffTimeout(attempt uint16) time.Duration {
	// nolint:gosec // G404: Use of weak random number generator
	return time.Duration(500*attempt*attempt)*time.Millisecond + time.Duration(rand.Intn(1000))*time.Millisecond
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
	amino "github.com/tendermint/go-amino"

	"github.com/glint-chain/glintd/rpc/coretypes"
	"github.com/glint-chain/glintd/types"
)

const (
	protoHTTP  = "http"
	protoHTTPS = "https"
	protoTCP   = "tcp"
	protoUNIX  = "unix"
)

// Client is a JSON-RPC 2.0 client which talks to a node over HTTP.
// Requests are made synchronously over a single connection pool and
// responses are decoded with the amino codec, so interface-typed fields
// (e.g. validator public keys) round-trip correctly.
//
// Request IDs are incremented monotonically, and each response's ID is
// checked against its request.
type Client struct {
	address string
	remote  string

	client *http.Client
	cdc    *amino.Codec

	mtx       sync.Mutex
	nextReqID int
}

// New returns a Client pointed at the given remote address. An error is
// returned on invalid remote. The error "unsupported protocol scheme" is
// returned for remotes without a scheme and without a recognized default.
func New(remote string) (*Client, error) {
	address, dialer, err := makeHTTPDialer(remote)
	if err != nil {
		return nil, err
	}

	return &Client{
		address: address,
		remote:  remote,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: dialer,
			},
		},
		cdc: types.GetCodec(),
	}, nil
}

// Remote returns the remote network address in a string form.
func (c *Client) Remote() string {
	return c.remote
}

// Codec returns the amino codec used to decode results.
func (c *Client) Codec() *amino.Codec {
	return c.cdc
}

// Call issues a JSON-RPC request for the given method and params, decoding
// the result into the given pointer.
func (c *Client) Call(ctx context.Context, method string,
	params map[string]interface{}, result interface{}) error {

	id := c.nextRequestID()

	paramsJSON, err := argsToJSON(c.cdc, params)
	if err != nil {
		return errors.Wrap(err, "failed to encode params")
	}

	request := NewRPCRequest(id, method, paramsJSON)
	requestBytes, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address,
		bytes.NewBuffer(requestBytes))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return errors.Wrapf(err, "%s call failed", method)
	}
	defer httpResponse.Body.Close()

	responseBytes, err := ioutil.ReadAll(httpResponse.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	return unmarshalResponseBytes(c.cdc, responseBytes, id, result)
}

func (c *Client) nextRequestID() JSONRPCIntID {
	c.mtx.Lock()
	id := c.nextReqID
	c.nextReqID++
	c.mtx.Unlock()
	return JSONRPCIntID(id)
}

//----------------------------------------
// NODE ENDPOINTS

// Status returns the node's status, including the latest block height.
func (c *Client) Status(ctx context.Context) (*coretypes.ResultStatus, error) {
	result := new(coretypes.ResultStatus)
	if err := c.Call(ctx, "status", map[string]interface{}{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Commit returns the signed header at the given height. If no height is
// given, the latest commit is returned.
func (c *Client) Commit(ctx context.Context, height *int64) (*coretypes.ResultCommit, error) {
	params := map[string]interface{}{}
	if height != nil {
		params["height"] = height
	}
	result := new(coretypes.ResultCommit)
	if err := c.Call(ctx, "commit", params, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Validators returns a page of validators at the given height. If no height
// is given, the latest validator set is returned.
func (c *Client) Validators(ctx context.Context, height *int64,
	page, perPage *int) (*coretypes.ResultValidators, error) {

	params := map[string]interface{}{}
	if height != nil {
		params["height"] = height
	}
	if page != nil {
		params["page"] = page
	}
	if perPage != nil {
		params["per_page"] = perPage
	}
	result := new(coretypes.ResultValidators)
	if err := c.Call(ctx, "validators", params, result); err != nil {
		return nil, err
	}
	return result, nil
}

// BroadcastEvidence submits evidence of misbehavior to the node.
func (c *Client) BroadcastEvidence(ctx context.Context,
	ev types.Evidence) (*coretypes.ResultBroadcastEvidence, error) {

	result := new(coretypes.ResultBroadcastEvidence)
	if err := c.Call(ctx, "broadcast_evidence",
		map[string]interface{}{"evidence": ev}, result); err != nil {
		return nil, err
	}
	return result, nil
}

//----------------------------------------

// argsToJSON amino-encodes each arg so interface types (e.g. public keys,
// evidence) carry their registered type information.
func argsToJSON(cdc *amino.Codec, args map[string]interface{}) (json.RawMessage, error) {
	encoded := make(map[string]json.RawMessage, len(args))
	for name, arg := range args {
		data, err := cdc.MarshalJSON(arg)
		if err != nil {
			return nil, err
		}
		encoded[name] = data
	}
	return json.Marshal(encoded)
}

func unmarshalResponseBytes(cdc *amino.Codec, responseBytes []byte,
	expectedID JSONRPCIntID, result interface{}) error {

	response := &RPCResponse{}
	if err := json.Unmarshal(responseBytes, response); err != nil {
		return errors.Wrap(err, "error unmarshaling response")
	}

	if response.Error != nil {
		return response.Error
	}

	if err := validateResponseID(response.ID, expectedID); err != nil {
		return err
	}

	if err := cdc.UnmarshalJSON(response.Result, result); err != nil {
		return errors.Wrap(err, "error unmarshaling result")
	}
	return nil
}

func validateResponseID(id jsonrpcid, expectedID JSONRPCIntID) error {
	if id == nil {
		return errors.New("missing ID in response")
	}
	got, ok := id.(JSONRPCIntID)
	if !ok {
		return fmt.Errorf("expected JSONRPCIntID, but got: %T", id)
	}
	if got != expectedID {
		return fmt.Errorf("response ID (%d) does not match request ID (%d)", got, expectedID)
	}
	return nil
}

// makeHTTPDialer parses the remote address and returns the HTTP request
// address together with a dialer for the underlying transport. Remotes
// without a scheme default to tcp, and tcp remotes are requested over http.
func makeHTTPDialer(remote string) (string, func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if !strings.Contains(remote, "://") {
		remote = protoTCP + "://" + remote
	}

	u, err := url.Parse(remote)
	if err != nil {
		return "", nil, errors.Wrapf(err, "invalid remote %s", remote)
	}

	var (
		dialNetwork = protoTCP
		dialAddr    = u.Host
		requestURL  string
	)

	switch u.Scheme {
	case protoHTTP, protoHTTPS:
		requestURL = u.String()
	case protoTCP:
		requestURL = protoHTTP + "://" + u.Host + u.Path
	case protoUNIX:
		dialNetwork = protoUNIX
		dialAddr = u.Path
		// The host part is a placeholder, the dialer ignores it.
		requestURL = protoHTTP + "://unix"
	default:
		return "", nil, fmt.Errorf("unsupported protocol scheme %q in remote %s", u.Scheme, remote)
	}

	var d net.Dialer
	dialer := func(ctx context.Context, _, _ string) (net.Conn, error) {
		return d.DialContext(ctx, dialNetwork, dialAddr)
	}

	return requestURL, dialer, nil
}

package smartaccount

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client talks to the smart-account wallet API over JSON-RPC.
type Client struct {
	rpc      *rpc.Client
	chainID  *big.Int
	policyID string
	timeout  time.Duration
}

type Option func(*Client)

// WithPaymasterPolicy sponsors gas through the given policy.
func WithPaymasterPolicy(policyID string) Option {
	return func(c *Client) { c.policyID = policyID }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Dial connects to the wallet API endpoint. The connection is lazy for
// HTTP URLs.
func Dial(ctx context.Context, url string, chainID int64, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("smart account url not configured")
	}
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect smart account api: %w", err)
	}
	return NewClient(c, chainID, opts...), nil
}

func NewClient(c *rpc.Client, chainID int64, opts ...Option) *Client {
	client := &Client{
		rpc:     c,
		chainID: big.NewInt(chainID),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) Close() {
	c.rpc.Close()
}

// RequestAccount returns the smart account bound to owner, creating the
// counterfactual address on first use. Repeated calls return the same
// account.
func (c *Client) RequestAccount(ctx context.Context, owner common.Address) (*Account, error) {
	var out Account
	if err := c.call(ctx, &out, "wallet_requestAccount", RequestAccountParams{SignerAddress: owner}); err != nil {
		return nil, err
	}
	if out.AccountAddress == (common.Address{}) {
		return nil, fmt.Errorf("wallet_requestAccount returned no account")
	}
	return &out, nil
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	if req.ChainID == nil {
		req.ChainID = (*hexutil.Big)(c.ChainID())
	}
	var out SessionResult
	if err := c.call(ctx, &out, "wallet_createSession", req); err != nil {
		return nil, err
	}
	if len(out.SessionID) == 0 || out.SignatureRequest == nil {
		return nil, fmt.Errorf("wallet_createSession returned an incomplete session")
	}
	return &out, nil
}

// PrepareCalls builds an unsigned bundle. caps may be nil for owner-signed
// calls.
func (c *Client) PrepareCalls(ctx context.Context, from common.Address, calls []Call, caps *Capabilities) (*PreparedCalls, error) {
	if c.policyID != "" {
		if caps == nil {
			caps = &Capabilities{}
		} else {
			cp := *caps
			caps = &cp
		}
		caps.PaymasterService = &PaymasterService{PolicyID: c.policyID}
	}
	params := PrepareParams{
		Calls:        calls,
		From:         from,
		ChainID:      (*hexutil.Big)(c.ChainID()),
		Capabilities: caps,
	}
	var out PreparedCalls
	if err := c.call(ctx, &out, "wallet_prepareCalls", params); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendPreparedCalls submits a signed bundle and returns the first call id.
func (c *Client) SendPreparedCalls(ctx context.Context, signed *SignedCalls) (string, error) {
	var out SendResult
	if err := c.call(ctx, &out, "wallet_sendPreparedCalls", signed); err != nil {
		return "", err
	}
	if len(out.PreparedCallIDs) == 0 {
		return "", nil
	}
	return out.PreparedCallIDs[0], nil
}

func (c *Client) call(ctx context.Context, out any, method string, params any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.rpc.CallContext(callCtx, out, method, params); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

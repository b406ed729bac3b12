package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the slice of an Ethereum node the vault reader needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Limits are the effective per-(token, account) withdrawal limits. Zero
// MaxTotal means unlimited.
type Limits struct {
	MaxCount *big.Int
	MaxTotal *big.Int
}

// Reader performs view calls against a deployed vault, retrying transient
// node failures.
type Reader struct {
	address common.Address
	backend Backend
	timeout time.Duration
	retries int
}

func NewReader(address common.Address, backend Backend, timeout time.Duration, retries int) *Reader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Reader{address: address, backend: backend, timeout: timeout, retries: retries}
}

func (r *Reader) Address() common.Address {
	return r.address
}

func (r *Reader) Balance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return r.callUint(ctx, "balances", token, account)
}

func (r *Reader) EffectiveLimits(ctx context.Context, token, account common.Address) (Limits, error) {
	out, err := r.call(ctx, "getEffectiveLimits", token, account)
	if err != nil {
		return Limits{}, err
	}
	if len(out) != 2 {
		return Limits{}, fmt.Errorf("getEffectiveLimits: unexpected output length %d", len(out))
	}
	maxCount, ok1 := out[0].(*big.Int)
	maxTotal, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return Limits{}, fmt.Errorf("getEffectiveLimits: unexpected output types")
	}
	return Limits{MaxCount: maxCount, MaxTotal: maxTotal}, nil
}

func (r *Reader) TotalWithdrawn(ctx context.Context, token, account, key common.Address) (*big.Int, error) {
	return r.callUint(ctx, "totalWithdrawn", token, account, key)
}

func (r *Reader) WithdrawalCount(ctx context.Context, token, account, key common.Address) (*big.Int, error) {
	return r.callUint(ctx, "withdrawalCount", token, account, key)
}

func (r *Reader) Owner(ctx context.Context) (common.Address, error) {
	out, err := r.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("owner: unexpected output length %d", len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("owner: unexpected output type")
	}
	return addr, nil
}

func (r *Reader) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output length %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type", method)
	}
	return v, nil
}

func (r *Reader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &r.address, Data: data}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		output, err := r.backend.CallContract(attemptCtx, msg, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("%s call failed: %w", method, err)
			if !shouldRetry(ctx, attempt, r.retries) {
				break
			}
			continue
		}
		values, err := parsedABI.Unpack(method, output)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
		}
		return values, nil
	}
	return nil, lastErr
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		return true
	}
}

// LazyClient dials the node on first use so the service can start without a
// reachable RPC endpoint.
type LazyClient struct {
	rpcURL string
	mu     sync.Mutex
	client *ethclient.Client
}

func NewLazyClient(rpcURL string) *LazyClient {
	return &LazyClient{rpcURL: strings.TrimSpace(rpcURL)}
}

func (l *LazyClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.CallContract(ctx, msg, blockNumber)
}

func (l *LazyClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.CodeAt(ctx, account, blockNumber)
}

func (l *LazyClient) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		l.client.Close()
		l.client = nil
	}
}

func (l *LazyClient) get(ctx context.Context) (*ethclient.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	if l.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, l.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	l.client = client
	return l.client, nil
}

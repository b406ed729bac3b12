package smartaccount

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CodeReader reads deployed bytecode. *ethclient.Client satisfies it.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// DeclaresDeployment reports whether a bundle carries account deployment
// data. Only user-operation bundles can.
func DeclaresDeployment(p *PreparedCalls) bool {
	if p == nil || (p.Type != TypeUserOpV070 && p.Type != TypeUserOpV060) {
		return false
	}
	var op UserOperation
	if err := json.Unmarshal(p.Data, &op); err != nil {
		return false
	}
	if op.Factory != nil && *op.Factory != (common.Address{}) {
		return true
	}
	return len(op.FactoryData) > 0 || len(op.InitCode) > 0
}

// StripInitCodeIfDeployed clears deployment data from a bundle whose sender
// already has code on-chain. It performs at most one code read and reports
// whether the bundle was changed. Infra occasionally returns deployment data
// for an already-deployed account, which the entry point rejects.
func StripInitCodeIfDeployed(ctx context.Context, code CodeReader, sender common.Address, p *PreparedCalls) (*PreparedCalls, bool, error) {
	if !DeclaresDeployment(p) {
		return p, false, nil
	}
	if code == nil {
		return nil, false, fmt.Errorf("deployment check failed: no chain reader configured")
	}
	deployed, err := code.CodeAt(ctx, sender, nil)
	if err != nil {
		return nil, false, fmt.Errorf("deployment check failed: %w", err)
	}
	if len(deployed) == 0 {
		return p, false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(p.Data, &fields); err != nil {
		return nil, false, fmt.Errorf("invalid prepared calls data: %w", err)
	}
	empty, _ := json.Marshal(hexutil.Bytes{})
	if _, ok := fields["initCode"]; ok {
		fields["initCode"] = empty
	}
	if p.Type == TypeUserOpV070 || fields["factory"] != nil {
		zero, _ := json.Marshal(common.Address{})
		fields["factory"] = zero
		fields["factoryData"] = empty
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, false, err
	}

	out := *p
	out.Data = data
	return &out, true, nil
}

package smartaccount

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is what a bundle or grant needs from a key holder.
type Signer interface {
	Address() common.Address
	SignMessage(msg []byte) ([]byte, error)
	SignTypedData(td apitypes.TypedData) ([]byte, error)
}

// SignPreparedCalls signs a bundle. When corrected is true the infra's
// signature request no longer matches the bundle and the user operation hash
// is recomputed locally.
func SignPreparedCalls(s Signer, p *PreparedCalls, corrected bool) (*SignedCalls, error) {
	if p == nil {
		return nil, fmt.Errorf("prepared calls is nil")
	}

	var (
		sig []byte
		err error
	)
	req := p.SignatureRequest
	switch {
	case corrected || req == nil:
		hash, herr := UserOpHash(p)
		if herr != nil {
			return nil, herr
		}
		sig, err = s.SignMessage(hash.Bytes())
	default:
		sig, err = SignRequest(s, req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign prepared calls: %w", err)
	}

	return &SignedCalls{
		Type:      p.Type,
		Data:      p.Data,
		ChainID:   p.ChainID,
		Signature: Signature{Type: KeyTypeSecp256k1, Data: sig},
	}, nil
}

// SignRequest fulfils a signature request as personal_sign over the raw
// payload or as typed data.
func SignRequest(s Signer, req *SignatureRequest) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("signature request is nil")
	}
	switch req.Type {
	case SignPersonal:
		var raw rawPayload
		if err := json.Unmarshal(req.Data, &raw); err != nil || len(raw.Raw) == 0 {
			if len(req.RawPayload) == 0 {
				return nil, fmt.Errorf("personal_sign request has no raw payload")
			}
			raw.Raw = req.RawPayload
		}
		return s.SignMessage(raw.Raw)
	case SignTypedData:
		var td apitypes.TypedData
		if err := json.Unmarshal(req.Data, &td); err != nil {
			return nil, fmt.Errorf("invalid typed data: %w", err)
		}
		return s.SignTypedData(td)
	default:
		return nil, fmt.Errorf("unsupported signature request type %q", req.Type)
	}
}

// GrantContext is the opaque permissions token presented with every
// authorized call: 0x00 || sessionId || owner signature.
func GrantContext(sessionID, ownerSignature []byte) hexutil.Bytes {
	out := make([]byte, 0, 1+len(sessionID)+len(ownerSignature))
	out = append(out, 0x00)
	out = append(out, sessionID...)
	return append(out, ownerSignature...)
}

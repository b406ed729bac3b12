package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSelectorsListsSessionFunctions(t *testing.T) {
	out, err := run(t, "selectors")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(vault.SessionFunctions))
	for i, fn := range vault.SessionFunctions {
		sel, _ := vault.Selector(fn)
		assert.Equal(t, sel+"\t"+fn, lines[i])
	}
}

func TestGrantPrintsSessionRequest(t *testing.T) {
	out, err := run(t, "grant",
		"--vault", "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--key", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"--account", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		"--allowance", "1000",
	)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	assert.Equal(t, "0xaa36a7", req["chainId"])
	key := req["key"].(map[string]any)
	assert.Equal(t, "secp256k1", key["type"])
	assert.NotEmpty(t, req["permissions"])
}

func TestGrantRejectsBadInput(t *testing.T) {
	_, err := run(t, "grant", "--vault", "nope", "--key", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "--account", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	assert.Error(t, err)

	_, err = run(t, "grant",
		"--vault", "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--key", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"--account", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		"--allowance", "0",
	)
	assert.Error(t, err)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "AA21 didn't pay prefund")
	require.NoError(t, err)
	assert.Contains(t, out, "cause:   gas_funding")
}

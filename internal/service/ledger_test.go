package service

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct {
	inserts int
}

func (r *failingRepo) Insert(context.Context, *model.Operation) error {
	r.inserts++
	return nil
}

func (r *failingRepo) List(context.Context, int, string) ([]*model.Operation, error) {
	return nil, errors.New("db down")
}

func TestLedgerWritesFileAndListsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewLedgerService(dir, 10, nil)
	require.NoError(t, err)

	svc.Record(&model.Operation{Action: "ping", Outcome: model.OutcomeOK})
	svc.Record(&model.Operation{Action: "withdraw", Outcome: model.OutcomeFailed})
	svc.Record(&model.Operation{Action: "ping", Outcome: model.OutcomeFailed})
	svc.Close()

	ops, err := svc.List(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "ping", ops[0].Action)
	assert.Equal(t, model.OutcomeFailed, ops[0].Outcome)
	assert.NotEmpty(t, ops[0].ID)

	pings, err := svc.List(context.Background(), 1, "ping")
	require.NoError(t, err)
	require.Len(t, pings, 1)
	assert.Equal(t, model.OutcomeFailed, pings[0].Outcome)

	files, err := filepath.Glob(filepath.Join(dir, "operations-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestLedgerFallsBackToMemory(t *testing.T) {
	repo := &failingRepo{}
	svc, err := NewLedgerService(t.TempDir(), 2, repo)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		svc.Record(&model.Operation{Action: "withdraw"})
	}
	svc.Close()
	svc.Close()

	ops, err := svc.List(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Len(t, ops, 2, "ring keeps the newest entries")
	assert.LessOrEqual(t, repo.inserts, 3)
}

func TestLedgerRecordAfterCloseKeepsRing(t *testing.T) {
	svc, err := NewLedgerService(t.TempDir(), 4, nil)
	require.NoError(t, err)
	svc.Close()

	assert.NotPanics(t, func() {
		svc.Record(&model.Operation{Action: "refresh", Outcome: model.OutcomeOK})
	})

	ops, err := svc.List(context.Background(), 10, "refresh")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.NotEmpty(t, ops[0].ID)
}

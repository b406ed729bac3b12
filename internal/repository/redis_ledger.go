package repository

import (
	"context"
	"encoding/json"

	"github.com/agentvault/sessiongate/internal/model"
)

// RedisLedgerRepo keeps a capped list of operations, newest first. Used when
// no database is configured.
type RedisLedgerRepo struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisLedgerRepo(client *RedisClient, listKey string, listMax int) *RedisLedgerRepo {
	if listKey == "" {
		listKey = "sessiongate:operations"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisLedgerRepo{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisLedgerRepo) Insert(ctx context.Context, op *model.Operation) error {
	if op == nil {
		return nil
	}
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	pipe := r.client.Client.TxPipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisLedgerRepo) List(ctx context.Context, limit int, action string) ([]*model.Operation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fetch := limit
	if action != "" {
		fetch = limit * 5
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.Operation, 0, limit)
	for _, raw := range items {
		var op model.Operation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			continue
		}
		if action != "" && op.Action != action {
			continue
		}
		results = append(results, &op)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

package repository

import (
	"context"

	"github.com/agentvault/sessiongate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresLedgerRepo struct {
	db *gorm.DB
}

func NewPostgresLedgerRepo(db *gorm.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

func (r *PostgresLedgerRepo) Insert(ctx context.Context, op *model.Operation) error {
	if op == nil {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(op).Error
}

func (r *PostgresLedgerRepo) List(ctx context.Context, limit int, action string) ([]*model.Operation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var ops []*model.Operation
	if err := q.Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

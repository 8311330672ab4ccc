package drawlog

import (
	"context"
	"fmt"

	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/model"
	"github.com/fystack/lotto-indexer/pkg/repository"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const DefaultTable = "lotto_draws"

type sqlSource struct {
	repo repository.Repository[model.Draw]
}

// NewSQLSource reads draws through gorm. The table is migrated on construction.
func NewSQLSource(db *gorm.DB, table string) (Source, error) {
	if table == "" {
		table = DefaultTable
	}
	repo := repository.NewTableRepository[model.Draw](db, table)
	if err := repo.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", table, err)
	}
	return &sqlSource{repo: repo}, nil
}

func (s *sqlSource) find(ctx context.Context, game string, limit int) ([]types.Draw, error) {
	opts := repository.FindOptions{
		Where: repository.WhereType{"game": game},
		Order: []repository.OrderBy{repository.Desc("date")},
	}
	if limit > 0 {
		opts.Limit = uint(limit)
	}
	rows, err := s.repo.Find(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load draws for %s: %w", game, err)
	}
	return lo.Map(rows, func(r *model.Draw, _ int) types.Draw { return r.ToDraw() }), nil
}

func (s *sqlSource) LoadRecentDraws(ctx context.Context, game string, depth int) ([]types.Draw, error) {
	if depth <= 0 {
		return nil, nil
	}
	return s.find(ctx, game, depth)
}

func (s *sqlSource) LoadAll(ctx context.Context, game string) ([]types.Draw, error) {
	return s.find(ctx, game, 0)
}

func (s *sqlSource) Count(ctx context.Context, game string) (int64, error) {
	return s.repo.Count(ctx, repository.FindOptions{Where: repository.WhereType{"game": game}})
}

func (s *sqlSource) SaveDraws(ctx context.Context, game string, draws []types.Draw) (int, error) {
	rows := lo.Map(draws, func(d types.Draw, _ int) *model.Draw {
		row := model.DrawFromDomain(game, d)
		return &row
	})
	n, err := s.repo.CreateIgnoreConflicts(ctx, rows, 500)
	return int(n), err
}

package drawlog

import (
	"context"

	"github.com/fystack/lotto-indexer/pkg/common/types"
)

// Source is the historical draw log of every configured game.
type Source interface {
	// LoadRecentDraws returns up to depth draws, most recent first.
	LoadRecentDraws(ctx context.Context, game string, depth int) ([]types.Draw, error)
	// LoadAll returns every draw, most recent first.
	LoadAll(ctx context.Context, game string) ([]types.Draw, error)
	Count(ctx context.Context, game string) (int64, error)
	// SaveDraws stores draws and reports how many were new.
	SaveDraws(ctx context.Context, game string, draws []types.Draw) (int, error)
}

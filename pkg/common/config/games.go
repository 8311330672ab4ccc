package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/imdario/mergo"
)

// presets hold the shape of games the indexer knows out of the box.
var presets = map[string]GameConfig{
	"fantasy5":     {Name: "Fantasy 5", MaxNumber: 42, PickSize: 5},
	"georgia5":     {Name: "Georgia 5", MaxNumber: 39, PickSize: 5},
	"megamillions": {Name: "Mega Millions", MaxNumber: 70, PickSize: 5},
	"powerball":    {Name: "Powerball", MaxNumber: 69, PickSize: 5},
}

func builtinDefaults() GameConfig {
	return GameConfig{
		DigitRanges:     3,
		DupDepth:        4,
		RankWindow:      constant.DefaultRankWindow,
		WeightWindows:   slices.Clone(constant.DefaultWeightWindows),
		DefaultKCount:   1,
		KCountWindow:    1000,
		DrawInterval:    constant.DefaultDrawInterval,
		CheckpointEvery: constant.DefaultCheckpointEvery,
		Constraints:     DefaultConstraints(),
	}
}

// DefaultConstraints returns the dup and rank ceilings used when a game sets none.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxDup:  []int{1, 2, 3, 4},
		MaxRank: []int{0, 1, 3, 3, 2, 3, 2, 0},
	}
}

func (d Defaults) asGame() GameConfig {
	return GameConfig{
		DigitRanges:     d.DigitRanges,
		DupDepth:        d.DupDepth,
		RankWindow:      d.RankWindow,
		WeightWindows:   d.WeightWindows,
		DefaultKCount:   d.DefaultKCount,
		KCountWindow:    d.KCountWindow,
		DrawInterval:    d.DrawInterval,
		Constraints:     d.Constraints,
		CheckpointEvery: d.CheckpointEvery,
	}
}

// ApplyDefaults fills every game from its preset, the config defaults, then built-ins.
func (g Games) ApplyDefaults(def Defaults) error {
	for code, game := range g {
		game.Code = strings.ToLower(code)
		if preset, ok := presets[game.Code]; ok {
			if err := mergo.Merge(&game, preset); err != nil {
				return fmt.Errorf("merge preset for %s: %w", code, err)
			}
		}
		if err := mergo.Merge(&game, def.asGame()); err != nil {
			return fmt.Errorf("merge defaults for %s: %w", code, err)
		}
		if err := mergo.Merge(&game, builtinDefaults()); err != nil {
			return fmt.Errorf("merge builtin defaults for %s: %w", code, err)
		}
		if game.Name == "" {
			game.Name = strings.ToUpper(code)
		}
		g[code] = game
	}
	return nil
}

func (g Games) Get(code string) (GameConfig, error) {
	if gc, ok := g[code]; ok {
		return gc, nil
	}
	return GameConfig{}, fmt.Errorf("game %s not found", code)
}

func (g Games) Codes() []string {
	codes := make([]string, 0, len(g))
	for code := range g {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// SignatureFilter parses the configured signature list.
func (gc GameConfig) SignatureFilter() ([]types.Signature, error) {
	sigs := make([]types.Signature, 0, len(gc.Signatures))
	for _, s := range gc.Signatures {
		sig, err := types.ParseSignature(s)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

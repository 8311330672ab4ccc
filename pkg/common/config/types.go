package config

import (
	"time"
)

type Env string

const (
	DevEnv  Env = "dev"
	ProdEnv Env = "prod"
	StgEnv  Env = "stag"
)

type Config struct {
	Environment Env      `yaml:"env"      validate:"required,oneof=dev prod stag"`
	Defaults    Defaults `yaml:"defaults"`
	Games       Games    `yaml:"games"    validate:"required,min=1"`
	Services    Services `yaml:"services" validate:"required"`
}

// Defaults is merged into every game entry for fields the entry leaves empty.
type Defaults struct {
	DigitRanges     int           `yaml:"digit_ranges"`
	DupDepth        int           `yaml:"dup_depth"`
	RankWindow      int           `yaml:"rank_window"`
	WeightWindows   []int         `yaml:"weight_windows"`
	DefaultKCount   int           `yaml:"default_k_count"`
	KCountWindow    int           `yaml:"k_count_window"`
	DrawInterval    time.Duration `yaml:"draw_interval"`
	Constraints     Constraints   `yaml:"constraints"`
	CheckpointEvery int           `yaml:"checkpoint_every"`
}

type Games map[string]GameConfig

type GameConfig struct {
	Code            string        `yaml:"code"`
	Name            string        `yaml:"name"`
	MaxNumber       int           `yaml:"max_number"       validate:"required,min=1,max=99"`
	PickSize        int           `yaml:"pick_size"        validate:"required,min=1,ltefield=MaxNumber"`
	DigitRanges     int           `yaml:"digit_ranges"     validate:"min=2,max=7"`
	DupDepth        int           `yaml:"dup_depth"        validate:"min=1"`
	RankWindow      int           `yaml:"rank_window"      validate:"min=1"`
	WeightWindows   []int         `yaml:"weight_windows"   validate:"required,min=1,dive,min=0"`
	DefaultKCount   int           `yaml:"default_k_count"  validate:"min=0"`
	KCountWindow    int           `yaml:"k_count_window"   validate:"min=0"`
	DrawInterval    time.Duration `yaml:"draw_interval"`
	Constraints     Constraints   `yaml:"constraints"`
	CheckpointEvery int           `yaml:"checkpoint_every" validate:"min=1"`
	// Signatures restricts cover selection; empty means every known bucket.
	Signatures []string `yaml:"signatures"`
}

// Constraints are inclusive ceilings applied when selecting cover candidates.
type Constraints struct {
	MaxDup  []int `yaml:"max_dup"  validate:"omitempty,dive,min=0"`
	MaxRank []int `yaml:"max_rank" validate:"omitempty,len=8,dive,min=0"`
}

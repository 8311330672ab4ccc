package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
env: dev
defaults:
  dup_depth: 4
  rank_window: 30
games:
  fantasy5:
    digit_ranges: 3
  custom:
    max_number: 20
    pick_size: 4
    dup_depth: 2
    constraints:
      max_dup: [1, 2]
services:
  port: 8080
  kvstore:
    type: badger
    badger:
      in_memory: true
`

func TestParseAppliesPresetsAndDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	f5, err := cfg.Games.Get("fantasy5")
	require.NoError(t, err)
	assert.Equal(t, "fantasy5", f5.Code)
	assert.Equal(t, "Fantasy 5", f5.Name)
	assert.Equal(t, 42, f5.MaxNumber)
	assert.Equal(t, 5, f5.PickSize)
	assert.Equal(t, 3, f5.DigitRanges)
	assert.Equal(t, 4, f5.DupDepth)
	assert.Equal(t, 30, f5.RankWindow)
	assert.Equal(t, []int{10, 30, 100, 365, 500, 1000, 0}, f5.WeightWindows)
	assert.Equal(t, 48*time.Hour, f5.DrawInterval)
	assert.Equal(t, []int{1, 2, 3, 4}, f5.Constraints.MaxDup)
	assert.Equal(t, []int{0, 1, 3, 3, 2, 3, 2, 0}, f5.Constraints.MaxRank)

	custom, err := cfg.Games.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, 20, custom.MaxNumber)
	assert.Equal(t, 2, custom.DupDepth)
	assert.Equal(t, []int{1, 2}, custom.Constraints.MaxDup)
	assert.Equal(t, "CUSTOM", custom.Name)

	assert.Equal(t, []string{"custom", "fantasy5"}, cfg.Games.Codes())
}

func TestParseRejectsInvalidGame(t *testing.T) {
	cases := map[string]string{
		"pick larger than pool": `
env: dev
games:
  bad:
    max_number: 5
    pick_size: 6
services:
  port: 8080
  kvstore:
    type: badger
`,
		"too many digit ranges": `
env: dev
games:
  fantasy5:
    digit_ranges: 8
services:
  port: 8080
  kvstore:
    type: badger
`,
		"max_dup deeper than dup_depth": `
env: dev
games:
  fantasy5:
    dup_depth: 2
    constraints:
      max_dup: [1, 2, 3]
services:
  port: 8080
  kvstore:
    type: badger
`,
		"malformed signature": `
env: dev
games:
  fantasy5:
    signatures: ["62-2"]
services:
  port: 8080
  kvstore:
    type: badger
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestUnknownGame(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	_, err = cfg.Games.Get("keno")
	assert.Error(t, err)
}

func TestSignatureFilter(t *testing.T) {
	gc := GameConfig{Signatures: []string{"62-2-3", "100-3-2"}}
	sigs, err := gc.SignatureFilter()
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, 62, sigs[0].Sum)
	assert.Equal(t, 2, sigs[1].Odd)
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load("../../../configs/config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"fantasy5", "superlotto"}, cfg.Games.Codes())
	f5, err := cfg.Games.Get("fantasy5")
	require.NoError(t, err)
	assert.Equal(t, 39, f5.MaxNumber)
	assert.Equal(t, 24*time.Hour, f5.DrawInterval)
	assert.Equal(t, 5, f5.DupDepth)

	sl, err := cfg.Games.Get("superlotto")
	require.NoError(t, err)
	sigs, err := sl.SignatureFilter()
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	assert.Equal(t, "30 3 * * *", cfg.Services.Worker.Schedule)
}

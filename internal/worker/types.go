package worker

import (
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/types"
)

// Worker is the interface implemented by all worker types.
type Worker interface {
	Start()
	Stop()
}

type BuildResult struct {
	Processed uint64            `json:"processed"`
	Created   uint64            `json:"created"`
	Updated   uint64            `json:"updated"`
	Unchanged uint64            `json:"unchanged"`
	Cursor    types.Combination `json:"cursor"`
	Complete  bool              `json:"complete"`
}

type RefreshResult struct {
	Records   uint64 `json:"records"`
	Updated   uint64 `json:"updated"`
	Unchanged uint64 `json:"unchanged"`
	Tables    int    `json:"tables"`
}

// Modes a scheduled pipeline runs, in order.
var pipelineModes = []enum.PipelineMode{enum.ModeBuild, enum.ModeRefresh, enum.ModeCover}

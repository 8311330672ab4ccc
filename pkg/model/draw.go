package model

import (
	"slices"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/types"
)

// MaxBalls is the widest pick the draw table holds.
const MaxBalls = 7

// Draw is one row of the historical draw log, one column per ball in drawn order.
type Draw struct {
	BaseModel
	Game string    `gorm:"not null;type:varchar(32);uniqueIndex:idx_game_date" json:"game"`
	Date time.Time `gorm:"not null;uniqueIndex:idx_game_date;index"             json:"date"`
	B1   int       `json:"b1"`
	B2   int       `json:"b2"`
	B3   int       `json:"b3"`
	B4   int       `json:"b4"`
	B5   int       `json:"b5"`
	B6   int       `json:"b6"`
	B7   int       `json:"b7"`
	Sum  int       `json:"sum"`
}

func (d Draw) Balls() []int {
	all := []int{d.B1, d.B2, d.B3, d.B4, d.B5, d.B6, d.B7}
	return slices.DeleteFunc(all, func(v int) bool { return v == 0 })
}

func (d Draw) ToDraw() types.Draw {
	return types.Draw{Date: d.Date, Numbers: d.Balls()}
}

// DrawFromDomain maps a draw onto a row; balls beyond MaxBalls are dropped.
func DrawFromDomain(game string, draw types.Draw) Draw {
	row := Draw{Game: game, Date: draw.Date}
	fields := []*int{&row.B1, &row.B2, &row.B3, &row.B4, &row.B5, &row.B6, &row.B7}
	for i, n := range draw.Numbers {
		if i >= MaxBalls {
			break
		}
		*fields[i] = n
		row.Sum += n
	}
	return row
}

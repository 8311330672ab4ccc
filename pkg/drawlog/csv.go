package drawlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/types"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseCSV reads rows of "date,b1,...,bk". A header row is skipped when its
// first field is not a date. Every number must fall in [1..n] and be unique within its row.
func ParseCSV(r io.Reader, n, k int) ([]types.Draw, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var draws []types.Draw
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(rec) == 0 || strings.TrimSpace(strings.Join(rec, "")) == "" {
			continue
		}
		date, err := parseDate(rec[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < k+1 {
			return nil, fmt.Errorf("line %d: expected %d numbers, got %d", line, k, len(rec)-1)
		}
		nums := make([]int, 0, k)
		seen := make(map[int]struct{}, k)
		for _, field := range rec[1 : k+1] {
			v, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if v < 1 || v > n {
				return nil, fmt.Errorf("line %d: %d outside 1..%d: %w", line, v, n, types.ErrInvalidCombination)
			}
			if _, dup := seen[v]; dup {
				return nil, fmt.Errorf("line %d: repeated %d: %w", line, v, types.ErrInvalidCombination)
			}
			seen[v] = struct{}{}
			nums = append(nums, v)
		}
		draws = append(draws, types.Draw{Date: date, Numbers: nums})
	}
	return draws, nil
}

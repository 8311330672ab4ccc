package stats

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/samber/lo"
)

const (
	dateLayout = "2006-01-02"

	RecentDrawsShown = 10
	FrequencyWindow  = 1000
	AnalysisWindow   = 500
	HotColdSize      = 5
	sumBins          = 6
)

type RecentDraw struct {
	Date    string `json:"date"`
	Numbers []int  `json:"numbers"`
}

type Frequency struct {
	Numbers []int `json:"numbers"`
	Counts  []int `json:"counts"`
}

type SumAnalysis struct {
	Average    float64 `json:"average"`
	MostCommon int     `json:"mostCommon"`
	Range      [2]int  `json:"range"`
}

type EvenOddAnalysis struct {
	EvenCount float64 `json:"evenCount"`
	OddCount  float64 `json:"oddCount"`
	Ratio     float64 `json:"ratio"`
}

type SumDistribution struct {
	Ranges []string `json:"ranges"`
	Counts []int    `json:"counts"`
}

type HotCold struct {
	Hot  []int `json:"hotNumbers"`
	Cold []int `json:"coldNumbers"`
}

// DashboardSummary is the payload of /api/lottery-data.
type DashboardSummary struct {
	Game            string          `json:"game"`
	LastDrawDate    string          `json:"lastDrawDate"`
	NextDrawDate    string          `json:"nextDrawDate"`
	TotalDraws      int64           `json:"totalDraws"`
	RecentDraws     []RecentDraw    `json:"recentDraws"`
	Frequency       Frequency       `json:"frequency"`
	HotNumbers      []int           `json:"hotNumbers"`
	ColdNumbers     []int           `json:"coldNumbers"`
	SumAnalysis     SumAnalysis     `json:"sumAnalysis"`
	EvenOddAnalysis EvenOddAnalysis `json:"evenOddAnalysis"`
	SumDistribution SumDistribution `json:"sumDistribution"`
}

func head(draws []types.Draw, n int) []types.Draw {
	return draws[:min(n, len(draws))]
}

// Summarize builds the dashboard view of draws, ordered most recent first.
func Summarize(game string, draws []types.Draw, total int64, n int, interval time.Duration, now time.Time) DashboardSummary {
	s := DashboardSummary{
		Game:        game,
		TotalDraws:  total,
		RecentDraws: RecentDraws(draws, RecentDrawsShown),
		Frequency:   NumberFrequency(head(draws, FrequencyWindow), n),
	}
	if len(draws) > 0 {
		last := draws[0].Date
		s.LastDrawDate = last.Format(dateLayout)
		s.NextDrawDate = last.Add(interval).Format(dateLayout)
	} else {
		s.LastDrawDate = now.Format(dateLayout)
		s.NextDrawDate = now.Format(dateLayout)
	}

	window := head(draws, AnalysisWindow)
	hc := HotAndCold(window, n, HotColdSize)
	s.HotNumbers, s.ColdNumbers = hc.Hot, hc.Cold
	s.SumAnalysis = AnalyzeSums(window)
	s.EvenOddAnalysis = AnalyzeEvenOdd(window)
	s.SumDistribution = DistributeSums(window)
	return s
}

func RecentDraws(draws []types.Draw, limit int) []RecentDraw {
	return lo.Map(head(draws, limit), func(d types.Draw, _ int) RecentDraw {
		return RecentDraw{Date: d.Date.Format(dateLayout), Numbers: slices.Clone(d.Numbers)}
	})
}

// NumberFrequency counts every number 1..n over draws.
func NumberFrequency(draws []types.Draw, n int) Frequency {
	f := Frequency{Numbers: make([]int, n), Counts: make([]int, n)}
	for i := range n {
		f.Numbers[i] = i + 1
	}
	for _, d := range draws {
		for _, v := range d.Numbers {
			if v >= 1 && v <= n {
				f.Counts[v-1]++
			}
		}
	}
	return f
}

// HotAndCold returns the size most and least drawn numbers. Ties keep the smaller number first.
func HotAndCold(draws []types.Draw, n, size int) HotCold {
	f := NumberFrequency(draws, n)
	order := slices.Clone(f.Numbers)
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(f.Counts[b-1], f.Counts[a-1])
	})
	size = min(size, len(order))
	cold := slices.Clone(order[len(order)-size:])
	slices.Reverse(cold)
	return HotCold{Hot: slices.Clone(order[:size]), Cold: cold}
}

func AnalyzeSums(draws []types.Draw) SumAnalysis {
	if len(draws) == 0 {
		return SumAnalysis{}
	}
	sums := lo.Map(draws, func(d types.Draw, _ int) int { return lo.Sum(d.Numbers) })
	counts := lo.CountValues(sums)
	best, bestCount := sums[0], 0
	for _, s := range sums {
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return SumAnalysis{
		Average:    round(float64(lo.Sum(sums))/float64(len(sums)), 1),
		MostCommon: best,
		Range:      [2]int{slices.Min(sums), slices.Max(sums)},
	}
}

func AnalyzeEvenOdd(draws []types.Draw) EvenOddAnalysis {
	var even, odd int
	for _, d := range draws {
		for _, v := range d.Numbers {
			if v%2 == 0 {
				even++
			} else {
				odd++
			}
		}
	}
	total := even + odd
	if total == 0 {
		return EvenOddAnalysis{EvenCount: 50, OddCount: 50, Ratio: 1}
	}
	ratio := 1.0
	if odd > 0 {
		ratio = round(float64(even)/float64(odd), 2)
	}
	return EvenOddAnalysis{
		EvenCount: math.RoundToEven(float64(even) / float64(total) * 100),
		OddCount:  math.RoundToEven(float64(odd) / float64(total) * 100),
		Ratio:     ratio,
	}
}

// DistributeSums splits the observed sum range into six bins; the last bin absorbs the remainder.
func DistributeSums(draws []types.Draw) SumDistribution {
	if len(draws) == 0 {
		return SumDistribution{Ranges: []string{}, Counts: []int{}}
	}
	sums := lo.Map(draws, func(d types.Draw, _ int) int { return lo.Sum(d.Numbers) })
	low, high := slices.Min(sums), slices.Max(sums)
	size := (high - low) / sumBins

	out := SumDistribution{Ranges: make([]string, sumBins), Counts: make([]int, sumBins)}
	for i := range sumBins {
		start := low + i*size
		end := high
		if i < sumBins-1 {
			end = start + size - 1
		}
		out.Ranges[i] = fmt.Sprintf("%d-%d", start, end)
		for _, s := range sums {
			if s >= start && s <= end {
				out.Counts[i]++
			}
		}
	}
	return out
}

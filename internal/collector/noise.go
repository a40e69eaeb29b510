package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const candleSpacing = 60 * time.Second

// Gap is a hole between two consecutive stored candles.
type Gap struct {
	Previous time.Time
	Open     time.Time
	Diff     time.Duration
	Missing  int
}

type GapReport struct {
	Symbol  string
	Candles int
	// FirstSpacing is the distance between the first two candles.
	FirstSpacing time.Duration
	Gaps         []Gap
}

func (r GapReport) MissingCandles() int {
	total := 0
	for _, g := range r.Gaps {
		total += g.Missing
	}
	return total
}

// CheckNoise scans one candle history file for gaps wider than one minute.
func CheckNoise(path string, logger *zap.Logger) (*GapReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	klines, err := ReadKlines(path)
	if err != nil {
		return nil, err
	}

	opens := make([]int64, len(klines))
	for i, k := range klines {
		opens[i] = k.OpenTime
	}
	sort.Slice(opens, func(i, j int) bool { return opens[i] < opens[j] })

	report := &GapReport{
		Symbol:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Candles: len(opens),
	}
	if len(opens) >= 2 {
		report.FirstSpacing = time.Duration(opens[1]-opens[0]) * time.Millisecond
	}

	for i := 1; i < len(opens); i++ {
		diff := time.Duration(opens[i]-opens[i-1]) * time.Millisecond
		if diff <= candleSpacing {
			continue
		}
		report.Gaps = append(report.Gaps, Gap{
			Previous: time.UnixMilli(opens[i-1]).UTC(),
			Open:     time.UnixMilli(opens[i]).UTC(),
			Diff:     diff,
			Missing:  int(diff/candleSpacing) - 1,
		})
	}

	logger.Info("Candle spacing", zap.String("symbol", report.Symbol), zap.Duration("firstSpacing", report.FirstSpacing))
	for i, g := range report.Gaps {
		if i == 10 {
			break
		}
		logger.Info("Missing candles",
			zap.String("symbol", report.Symbol),
			zap.Time("previous", g.Previous),
			zap.Time("open", g.Open),
			zap.Duration("diff", g.Diff),
			zap.Int("missing", g.Missing),
		)
	}
	logger.Info("Gaps over one minute", zap.String("symbol", report.Symbol), zap.Int("total", len(report.Gaps)))

	return report, nil
}

// CheckNoiseDir runs CheckNoise over every .csv file in dir, in name order.
// A file that cannot be read is reported in the joined error and skipped.
func CheckNoiseDir(dir string, logger *zap.Logger) ([]GapReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var (
		reports []GapReport
		errs    []error
	)
	for _, path := range matches {
		report, err := CheckNoise(path, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		reports = append(reports, *report)
	}
	return reports, errors.Join(errs...)
}

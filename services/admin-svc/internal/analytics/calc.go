package analytics

import (
	"math"
	"time"

	"reviewhub/pkg/apperror"
	"reviewhub/services/admin-svc/internal/repository"
)

// Trend направление изменения метрики
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// DateLayout формат даты точки графика
const DateLayout = "2006-01-02"

// TimeRange полуоткрытое окно [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate окно должно быть задано и End > Start
func (r TimeRange) Validate() error {
	verrs := apperror.NewValidationErrors()
	switch {
	case r.Start.IsZero() || r.End.IsZero():
		verrs.AddErrorWithField(apperror.CodeInvalidTimeRange, "start and end are required", "range")
	case !r.End.After(r.Start):
		verrs.AddErrorWithField(apperror.CodeInvalidTimeRange, "end must be after start", "range")
	}
	return verrs.Err()
}

// Previous окно той же длительности, заканчивающееся ровно в Start
func (r TimeRange) Previous() TimeRange {
	return TimeRange{Start: r.Start.Add(-r.End.Sub(r.Start)), End: r.Start}
}

// Days длительность окна в сутках, округлённая вверх
func (r TimeRange) Days() int {
	return int(math.Ceil(r.End.Sub(r.Start).Hours() / 24))
}

// CalculatePercentageChange изменение в процентах относительно previous.
// При previous = 0 возвращает 100, если current > 0, иначе 0.
func CalculatePercentageChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return round2((current - previous) / previous * 100)
}

// CalculateTrend сравнивает сырые значения
func CalculateTrend(current, previous float64) Trend {
	switch {
	case current > previous:
		return TrendUp
	case current < previous:
		return TrendDown
	default:
		return TrendStable
	}
}

func newMetric(label string, current, previous float64) Metric {
	return Metric{
		Label:    label,
		Value:    current,
		Previous: previous,
		Change:   CalculatePercentageChange(current, previous),
		Trend:    CalculateTrend(current, previous),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// toPoints переводит суточные агрегаты в точки графика.
// При fillGaps каждый день окна без данных получает 0.
func toPoints(values []repository.DailyValue, r TimeRange, fillGaps bool) []ChartPoint {
	if !fillGaps {
		points := make([]ChartPoint, len(values))
		for i, v := range values {
			points[i] = ChartPoint{Date: v.Day.UTC().Format(DateLayout), Value: v.Value}
		}
		return points
	}

	byDay := make(map[string]float64, len(values))
	for _, v := range values {
		byDay[v.Day.UTC().Format(DateLayout)] += v.Value
	}

	start := r.Start.UTC().Truncate(24 * time.Hour)
	points := make([]ChartPoint, 0, r.Days()+1)
	for day := start; day.Before(r.End); day = day.AddDate(0, 0, 1) {
		key := day.Format(DateLayout)
		points = append(points, ChartPoint{Date: key, Value: byDay[key]})
	}
	return points
}

// bounceRate доля сессий с отказом в процентах, 0 без сессий
func bounceRate(bounced, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(bounced) / float64(total) * 100)
}

package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"medprep/internal/models"
)

const (
	trendDays   = 7
	trendWeeks  = 4
	trendMonths = 6
)

// TrendPoint is one bucket of a completion chart. Date is the first day of the bucket.
type TrendPoint struct {
	Label          string  `json:"label"`
	CompletionRate float64 `json:"completionRate"`
	Date           string  `json:"date"`
}

// CompletionTrend holds the daily, weekly and monthly completion charts, oldest first
type CompletionTrend struct {
	Daily   []TrendPoint `json:"daily"`
	Weekly  []TrendPoint `json:"weekly"`
	Monthly []TrendPoint `json:"monthly"`
}

// GetCompletionTrend reports completion rates for the last 7 days, the 4 full weeks
// before today and the last 6 calendar months. Missing days count as 0 in the daily
// chart; weekly and monthly values average only the days that have a stat.
func (s *ReviewService) GetCompletionTrend(ctx context.Context, ownerID string) (*CompletionTrend, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	today := models.StartOfDay(s.clock())
	monthsFrom := firstOfMonth(today).AddDate(0, -(trendMonths - 1), 0)
	weeksFrom := today.AddDate(0, 0, -trendWeeks*7)
	from := monthsFrom
	if weeksFrom.Before(from) {
		from = weeksFrom
	}

	stats, err := s.statsRepo.ListBetween(ctx, ownerID, models.DayKey(from), models.DayKey(today))
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]float64, len(stats))
	for _, stat := range stats {
		byDay[stat.Date] = stat.CompletionRate
	}

	return &CompletionTrend{
		Daily:   dailyTrend(byDay, today),
		Weekly:  weeklyTrend(byDay, today),
		Monthly: monthlyTrend(byDay, today),
	}, nil
}

func dailyTrend(byDay map[string]float64, today time.Time) []TrendPoint {
	points := make([]TrendPoint, 0, trendDays)
	start := today.AddDate(0, 0, -(trendDays - 1))
	for i := 0; i < trendDays; i++ {
		day := start.AddDate(0, 0, i)
		key := models.DayKey(day)
		points = append(points, TrendPoint{
			Label:          day.Format("Mon"),
			CompletionRate: byDay[key],
			Date:           key,
		})
	}
	return points
}

func weeklyTrend(byDay map[string]float64, today time.Time) []TrendPoint {
	points := make([]TrendPoint, 0, trendWeeks)
	start := today.AddDate(0, 0, -trendWeeks*7)
	for i := 0; i < trendWeeks; i++ {
		weekStart := start.AddDate(0, 0, i*7)
		points = append(points, TrendPoint{
			Label:          fmt.Sprintf("Week %d", i+1),
			CompletionRate: meanRate(byDay, weekStart, weekStart.AddDate(0, 0, 7)),
			Date:           models.DayKey(weekStart),
		})
	}
	return points
}

func monthlyTrend(byDay map[string]float64, today time.Time) []TrendPoint {
	points := make([]TrendPoint, 0, trendMonths)
	start := firstOfMonth(today).AddDate(0, -(trendMonths - 1), 0)
	for i := 0; i < trendMonths; i++ {
		monthStart := start.AddDate(0, i, 0)
		points = append(points, TrendPoint{
			Label:          monthStart.Format("Jan"),
			CompletionRate: meanRate(byDay, monthStart, monthStart.AddDate(0, 1, 0)),
			Date:           models.DayKey(monthStart),
		})
	}
	return points
}

// meanRate averages the rates of days in [from, to) that have a stat, rounded
func meanRate(byDay map[string]float64, from, to time.Time) float64 {
	sum, n := 0.0, 0
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		if rate, ok := byDay[models.DayKey(day)]; ok {
			sum += rate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum / float64(n))
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

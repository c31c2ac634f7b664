package collector

import (
	"math"
	"sort"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/store"
)

// Layouts used in summaries.
const (
	DateLayout  = "2006-01-02"
	clockLayout = "3:04 PM"
)

// TodaySummary aggregates the records of one day.
type TodaySummary struct {
	Date          string  `json:"date"`
	TotalIn       int     `json:"total_in"`
	TotalOut      int     `json:"total_out"`
	CurrentInside int     `json:"current_inside"`
	PeakCount     int     `json:"peak_count"`
	PeakHour      *string `json:"peak_hour"`
	AvgToday      int     `json:"avg_today"`
	RecordsToday  int     `json:"records_today"`
}

// TrendPoint is the last count seen in one hour.
type TrendPoint struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// DaySummary is one day of a weekly report.
type DaySummary struct {
	Date        string  `json:"date"`
	Day         string  `json:"day"`
	BusiestHour *string `json:"busiest_hour"`
	FreestHour  *string `json:"freest_hour"`
	TotalIn     int     `json:"total_in"`
	TotalOut    int     `json:"total_out"`
	PeakCount   int     `json:"peak_count"`
}

// WeekSummary covers seven days starting at WeekStart.
type WeekSummary struct {
	WeekStart string       `json:"week_start"`
	WeekEnd   string       `json:"week_end"`
	Days      []DaySummary `json:"days"`
}

// Activity is one crossing in the recent activity feed.
type Activity struct {
	Type         string    `json:"type"`
	Time         string    `json:"time"`
	CountChange  string    `json:"count_change"`
	CurrentCount int       `json:"current_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Sunday midnight on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// Today summarizes recs, which must be ordered oldest first and all fall on
// the day starting at day.
func Today(day time.Time, recs []store.Record) TodaySummary {
	s := TodaySummary{Date: day.Format(DateLayout), RecordsToday: len(recs)}
	if len(recs) == 0 {
		return s
	}

	s.CurrentInside = recs[len(recs)-1].CurrentCount
	total := 0
	var peak *store.Record
	// Newest first so that ties credit the most recent record.
	for i := len(recs) - 1; i >= 0; i-- {
		r := &recs[i]
		switch r.Direction {
		case "IN":
			s.TotalIn++
		case "OUT":
			s.TotalOut++
		}
		total += r.CurrentCount
		if r.CurrentCount > s.PeakCount {
			s.PeakCount = r.CurrentCount
			peak = r
		}
	}
	if peak != nil {
		h := peak.Timestamp.In(day.Location()).Format(clockLayout)
		s.PeakHour = &h
	}
	s.AvgToday = int(math.Floor(float64(total)/float64(len(recs)) + 0.5))
	return s
}

// Trend returns the last count of each hour, ordered by hour. recs must be
// ordered oldest first.
func Trend(loc *time.Location, recs []store.Record) []TrendPoint {
	last := make(map[int]int)
	for _, r := range recs {
		last[r.Timestamp.In(loc).Hour()] = r.CurrentCount
	}

	hours := make([]int, 0, len(last))
	for h := range last {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	out := make([]TrendPoint, 0, len(hours))
	for _, h := range hours {
		out = append(out, TrendPoint{Time: time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04"), Count: last[h]})
	}
	return out
}

type dayBucket struct {
	date    time.Time
	records []store.Record
	hourly  map[int][]int
}

// Week summarizes the seven days starting at start. Days without records are
// omitted.
func Week(start time.Time, recs []store.Record) WeekSummary {
	loc := start.Location()
	w := WeekSummary{
		WeekStart: start.Format(DateLayout),
		WeekEnd:   start.AddDate(0, 0, 6).Format(DateLayout),
		Days:      []DaySummary{},
	}

	buckets := make(map[string]*dayBucket)
	for _, r := range recs {
		ts := r.Timestamp.In(loc)
		key := ts.Format(DateLayout)
		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{date: StartOfDay(ts), hourly: make(map[int][]int)}
			buckets[key] = b
		}
		b.records = append(b.records, r)
		b.hourly[ts.Hour()] = append(b.hourly[ts.Hour()], r.CurrentCount)
	}

	for _, b := range buckets {
		w.Days = append(w.Days, summarizeDay(b))
	}
	sort.Slice(w.Days, func(i, j int) bool { return w.Days[i].Date < w.Days[j].Date })
	return w
}

func summarizeDay(b *dayBucket) DaySummary {
	d := DaySummary{Date: b.date.Format(DateLayout), Day: b.date.Weekday().String()}
	for _, r := range b.records {
		switch r.Direction {
		case "IN":
			d.TotalIn++
		case "OUT":
			d.TotalOut++
		}
		d.PeakCount = max(d.PeakCount, r.CurrentCount)
	}

	hours := make([]int, 0, len(b.hourly))
	for h := range b.hourly {
		hours = append(hours, h)
	}
	if len(hours) == 0 {
		return d
	}
	sort.Ints(hours)

	// Earliest hour wins ties in both directions.
	busiest, freest := hours[0], hours[0]
	avg := func(h int) float64 {
		sum := 0
		for _, c := range b.hourly[h] {
			sum += c
		}
		return float64(sum) / float64(len(b.hourly[h]))
	}
	for _, h := range hours[1:] {
		if avg(h) > avg(busiest) {
			busiest = h
		}
		if avg(h) < avg(freest) {
			freest = h
		}
	}
	bh, fh := formatHour(busiest), formatHour(freest)
	d.BusiestHour, d.FreestHour = &bh, &fh
	return d
}

func formatHour(h int) string {
	return time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format(clockLayout)
}

// Recent maps crossing records to activity entries.
func Recent(loc *time.Location, recs []store.Record) []Activity {
	out := make([]Activity, 0, len(recs))
	for _, r := range recs {
		a := Activity{
			Type:         "exit",
			Time:         r.Timestamp.In(loc).Format(clockLayout),
			CountChange:  "-1",
			CurrentCount: r.CurrentCount,
			Timestamp:    r.Timestamp,
		}
		if r.Direction == "IN" {
			a.Type, a.CountChange = "entry", "+1"
		}
		out = append(out, a)
	}
	return out
}

package domain

import "math"

// ResampleWeekly collapses a date-ascending daily series into one bar
// per ISO week: open from the first session, high and low over the
// week's published extremes, close and date from the last session, and
// turnover summed over published values. A field with no published
// value all week stays NaN.
func ResampleWeekly(series []Quote) []Quote {
	var weeks []Quote
	for i := 0; i < len(series); {
		j := i + 1
		y, w := series[i].Date.ISOWeek()
		for j < len(series) {
			jy, jw := series[j].Date.ISOWeek()
			if jy != y || jw != w {
				break
			}
			j++
		}
		weeks = append(weeks, weekBar(series[i:j]))
		i = j
	}
	return weeks
}

func weekBar(days []Quote) Quote {
	first, last := days[0], days[len(days)-1]
	bar := Quote{
		Date:         last.Date,
		Code:         first.Code,
		Name:         first.Name,
		Open:         first.Open,
		High:         math.NaN(),
		Low:          math.NaN(),
		Close:        last.Close,
		Turnover:     math.NaN(),
		Source:       last.Source,
		DownloadedAt: last.DownloadedAt,
	}
	for _, d := range days {
		if Valid(d.High) && (!Valid(bar.High) || d.High > bar.High) {
			bar.High = d.High
		}
		if Valid(d.Low) && (!Valid(bar.Low) || d.Low < bar.Low) {
			bar.Low = d.Low
		}
		if Valid(d.Turnover) {
			if !Valid(bar.Turnover) {
				bar.Turnover = 0
			}
			bar.Turnover += d.Turnover
		}
	}
	return bar
}

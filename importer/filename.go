// importer/filename.go
package importer

import (
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

// Newzware report filenames end in a 14-digit run timestamp, e.g.
// AllSubscriberReport20251206164201.csv. Only the YYYYMMDD part matters.
var reportTimestampRegex = regexp.MustCompile(`(?i)(\d{14})\.csv$`)

const fileDateLayout = "20060102"

// ExtractFileDate pulls the run date out of a report filename. The
// timestamp represents when the report was RUN, not the week it describes.
// When the filename doesn't match the expected pattern the current date is
// used instead, with a warning; a mangled filename shouldn't block
// ingestion outright.
func ExtractFileDate(filename string) time.Time {
	matches := reportTimestampRegex.FindStringSubmatch(filename)
	if matches != nil {
		if d, err := time.Parse(fileDateLayout, matches[1][:8]); err == nil {
			return d
		}
	}
	logrus.Warnf("Importer: could not extract date from filename %q, using current date", filename)
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ReportingDate converts a file's run date to the date its data actually
// represents. Newzware runs the export a week after the fact, so the data
// week is the run date minus 7 days.
func ReportingDate(fileDate time.Time) time.Time {
	return fileDate.AddDate(0, 0, -7)
}

// ISOWeekStart returns the Monday of the given ISO week.
func ISOWeekStart(year, week int) time.Time {
	// January 4th is always inside ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	return monday.AddDate(0, 0, (week-1)*7)
}

// PreviousWeek steps one ISO week backward, resetting to week 52 when
// crossing a year boundary. The stored history was all written with this
// 52-week rollover.
// TODO: a rollover into a 53-week ISO year (2026 is the next one) skips
// that year's week 53; fixing this needs a data migration first.
func PreviousWeek(week, year int) (int, int) {
	week--
	if week < 1 {
		year--
		week = 52
	}
	return week, year
}

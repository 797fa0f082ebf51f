// importer/backfill.go
package importer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gewnthar/circdash/models"
)

// WeekChecker reports what is already stored for an ISO week. Satisfied by
// database.SnapshotStore; tests substitute an in-memory fake.
type WeekChecker interface {
	WeekStatus(week, year int) (*models.WeekStatus, error)
}

// PlanBackfill decides which weeks an upload will rewrite. It walks
// BACKWARD ONLY from the upload's reporting week, filling gaps until it
// hits the configured minimum date or a week with real (non-backfilled)
// data:
//
//   - missing week           → rewrite, keep scanning
//   - backfilled week        → rewrite (backfilled data is always
//     disposable), keep scanning
//   - real week at offset 0  → rewrite only when the new file is strictly
//     newer than the stored source date, otherwise refuse the upload
//   - real week further back → stop; real history is never overwritten
//
// The plan comes back oldest-first so processing order reads naturally in
// the logs.
func PlanBackfill(checker WeekChecker, reportWeek, reportYear int, fileDate time.Time, minBackfillDate time.Time) ([]models.PlannedWeek, error) {
	minYear, minWeek := minBackfillDate.ISOWeek()

	var plan []models.PlannedWeek

	currentWeek := reportWeek
	currentYear := reportYear
	weeksBack := 0

	for {
		if currentYear < minYear || (currentYear == minYear && currentWeek < minWeek) {
			logrus.Infof("Importer: backfill stopped at minimum week %d/%d", minWeek, minYear)
			break
		}

		status, err := checker.WeekStatus(currentWeek, currentYear)
		if err != nil {
			return nil, &models.StorageError{Op: "check existing week", Err: err}
		}

		if status.Exists {
			if !status.IsBackfilled {
				// Real data. The upload's own week may be superseded by a
				// newer file; anything older than that is untouchable.
				if weeksBack == 0 {
					if !status.SourceDate.Before(fileDate) {
						return nil, &models.PrecedenceError{
							Week:     currentWeek,
							Year:     currentYear,
							Existing: status.SourceDate.Format("2006-01-02"),
							Incoming: fileDate.Format("2006-01-02"),
						}
					}
					logrus.Infof("Importer: replacing upload week %d/%d with newer data (old: %s, new: %s)",
						currentWeek, currentYear,
						status.SourceDate.Format("2006-01-02"), fileDate.Format("2006-01-02"))
				} else {
					logrus.Infof("Importer: backfill stopped at week %d/%d (has real data from %s)",
						currentWeek, currentYear, status.SourceDate.Format("2006-01-02"))
					break
				}
			} else {
				logrus.Infof("Importer: replacing backfilled data at week %d/%d (old: %s, new: %s)",
					currentWeek, currentYear,
					status.SourceDate.Format("2006-01-02"), fileDate.Format("2006-01-02"))
			}
		}

		plan = append(plan, models.PlannedWeek{
			Week:         currentWeek,
			Year:         currentYear,
			WeeksOffset:  weeksBack,
			IsBackfilled: weeksBack > 0,
		})

		weeksBack++
		currentWeek, currentYear = PreviousWeek(currentWeek, currentYear)
	}

	if len(plan) == 0 {
		return nil, &models.ValidationError{Msg: "no weeks to process - reporting week is below the minimum backfill date"}
	}

	// Reverse so weeks are written oldest to newest.
	for i, j := 0, len(plan)-1; i < j; i, j = i+1, j-1 {
		plan[i], plan[j] = plan[j], plan[i]
	}

	return plan, nil
}

// importer/renewals_test.go
package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/circdash/models"
)

const sampleRenewalReport = `Renewal Churn Report by Issue,,,,,,,,,,,,,,,,
,,,,,,,,,,,,,,,,
Sub ID,Name,Ed.,Stat,Issue Date,Reg Exp,Reg Ren,Reg Stop,Reg %,Mthy Exp,Mthy Ren,Mthy Stop,Mthy %,Comp Exp,Comp Ren,Comp Stop,Comp %
20001,SMITH JOHN,TJ,RENEW,12/1/25,1,1,0,,0,0,0,,0,0,0,
20002,DOE JANE,TJ,EXPIRE,12/1/25,0,0,0,,1,0,1,,0,0,0,
20003,ROE RICHARD,TA,RENEW,12/2/25,0,0,0,,0,0,0,,1,1,0,
,ISSUE,TJ,,12/1/25,10,8,2,80%,5,4,1,80%,0,0,0,
Total,,,,,,,,,,,,,,,,
`

func TestParseRenewalCSV(t *testing.T) {
	report, err := ParseRenewalCSV(strings.NewReader(sampleRenewalReport), "RenewalChurn20251208.csv")
	require.NoError(t, err)

	require.Len(t, report.Events, 3)

	first := report.Events[0]
	assert.Equal(t, "20001", first.SubNum)
	assert.Equal(t, "TJ", first.PaperCode)
	assert.Equal(t, models.RenewalStatusRenew, first.Status)
	assert.Equal(t, models.SubTypeRegular, first.SubscriptionType)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), first.EventDate)
	assert.Equal(t, "RenewalChurn20251208.csv", first.SourceFilename)

	assert.Equal(t, models.RenewalStatusExpire, report.Events[1].Status)
	assert.Equal(t, models.SubTypeMonthly, report.Events[1].SubscriptionType)
	assert.Equal(t, models.SubTypeComplimentary, report.Events[2].SubscriptionType)

	// One ISSUE rollup line with two non-empty type blocks.
	require.Len(t, report.Summaries, 2)
	reg := report.Summaries[0]
	assert.Equal(t, models.SubTypeRegular, reg.SubscriptionType)
	assert.Equal(t, "TJ", reg.PaperCode)
	assert.Equal(t, 10, reg.ExpiringCount)
	assert.Equal(t, 8, reg.RenewedCount)
	assert.Equal(t, 2, reg.StoppedCount)
	assert.Equal(t, 80.0, reg.RenewalRate)
	assert.Equal(t, 20.0, reg.ChurnRate)

	assert.Equal(t, models.SubTypeMonthly, report.Summaries[1].SubscriptionType)
}

func TestParseRenewalCSVMissingColumns(t *testing.T) {
	csv := "Sub ID,Name,Ed.\n20001,SMITH,TJ\n"

	_, err := ParseRenewalCSV(strings.NewReader(csv), "renewal.csv")
	require.Error(t, err)

	var valErr *models.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Msg, "Stat")
	assert.Contains(t, valErr.Msg, "Issue Date")
}

func TestParseRenewalCSVNoData(t *testing.T) {
	csv := "Sub ID,Name,Ed.,Stat,Issue Date\nTotal,,,,\n"

	_, err := ParseRenewalCSV(strings.NewReader(csv), "renewal.csv")
	require.Error(t, err)

	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestParseRenewalCSVSkipsUnattributableEvents(t *testing.T) {
	// An event row with every expiring count at zero cannot be typed and
	// is dropped rather than guessed at.
	csv := `Sub ID,Name,Ed.,Stat,Issue Date,Reg Exp,Reg Ren,Reg Stop,Reg %,Mthy Exp,Mthy Ren,Mthy Stop,Mthy %,Comp Exp,Comp Ren,Comp Stop,Comp %
20001,SMITH JOHN,TJ,RENEW,12/1/25,0,0,0,,0,0,0,,0,0,0,
20002,DOE JANE,TJ,RENEW,12/1/25,1,1,0,,0,0,0,,0,0,0,
`

	report, err := ParseRenewalCSV(strings.NewReader(csv), "renewal.csv")
	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	assert.Equal(t, "20002", report.Events[0].SubNum)
}

// importer/rates_test.go
package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/circdash/models"
)

const sampleRateExport = `Rate.rr Online Desc,Rate.rr Edition,Rate.rr Issue,Rate.rr Length,"Rate.rr Len Type(m=month,Y-year,W=week)",Rate.rr Zone,Sub Rate Id,Effective Date,Full Rate
Weekly Carrier,TJ,D,52,W,Z1,101,6/1/25,65.00
Monthly EZ Pay,TJ,D,1,M,Z1,102,6/1/25,5.50
Old Promo,TA,D,1,Y,Z2,103,1/1/20,48.00
Comp Rate,TR,W,1,Y,Z1,104,6/1/25,0
`

func TestParseRateCSV(t *testing.T) {
	rows, err := ParseRateCSV(strings.NewReader(sampleRateExport))
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, "Weekly Carrier", rows[0].OnlineDesc)
	assert.Equal(t, "TJ", rows[0].Edition)
	assert.Equal(t, "52", rows[0].Length)
	assert.Equal(t, "W", rows[0].LenType)
	assert.Equal(t, "65.00", rows[0].FullRate)
	assert.Equal(t, "6/1/25", rows[0].EffectiveDate)
}

func TestParseRateCSVMissingColumns(t *testing.T) {
	csv := "Rate.rr Edition,Full Rate\nTJ,65.00\n"

	_, err := ParseRateCSV(strings.NewReader(csv))
	require.Error(t, err)

	var valErr *models.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Msg, "Rate.rr Zone")
}

func TestAnnualizeRate(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		lenType string
		length  string
		want    float64
	}{
		{"52 weeks at full price", 65.00, "W", "52", 65.00},
		{"single week", 1.25, "W", "1", 65.00},
		{"monthly", 5.50, "M", "1", 66.00},
		{"quarterly as 3 months", 16.50, "M", "3", 66.00},
		{"yearly passes through", 60.00, "Y", "1", 60.00},
		{"unknown type", 10.00, "X", "1", 0},
		{"zero length", 10.00, "W", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, annualizeRate(tt.rate, tt.lenType, tt.length))
		})
	}
}

func TestRateImporterSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	imp := NewRateImporter(db)
	imp.now = func() time.Time { return time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC) }

	rows, err := ParseRateCSV(strings.NewReader(sampleRateExport))
	require.NoError(t, err)

	mock.ExpectBegin()

	// Row 1: current weekly rate, flag plus market rate.
	mock.ExpectExec("INSERT INTO rate_flags").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO rate_structure").WillReturnResult(sqlmock.NewResult(0, 1))
	// Row 2: current monthly rate.
	mock.ExpectExec("INSERT INTO rate_flags").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO rate_structure").WillReturnResult(sqlmock.NewResult(0, 1))
	// Row 3: effective date more than two years old, flag only (2 = update).
	mock.ExpectExec("INSERT INTO rate_flags").WillReturnResult(sqlmock.NewResult(0, 2))
	// Row 4: zero rate, flag only.
	mock.ExpectExec("INSERT INTO rate_flags").WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	stats, err := imp.save(rows)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.FlagsImported)
	assert.Equal(t, 1, stats.FlagsUpdated)
	assert.Equal(t, 2, stats.StructuresImported)
	assert.Equal(t, 2, stats.AutoLegacy)
	assert.Equal(t, 0, stats.RowsSkipped)

	require.NoError(t, mock.ExpectationsWereMet())
}

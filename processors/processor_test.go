// processors/processor_test.go
package processors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/circdash/config"
	"github.com/gewnthar/circdash/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return DefaultRegistry(db, config.DefaultImportConfig())
}

func TestRegistryMatch(t *testing.T) {
	registry := newTestRegistry(t)

	tests := []struct {
		filename string
		wantType string
	}{
		{"AllSubscriberReport20251206164201.csv", "allsubscriber"},
		{"AllSub20251206164201.csv", "allsubscriber"},
		{"allsubscriberreport20251206164201.CSV", "allsubscriber"},
		{"RenewalChurn20251208.csv", "renewal"},
		{"WeeklyChurnByIssue.csv", "renewal"},
		{"SubscribersOnVacation20251206.csv", "vacation"},
		{"rates_export.csv", "rates"},
		{"SubscriptionRates2025.csv", "rates"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			proc, err := registry.Match(tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, proc.FileType())
		})
	}
}

func TestRegistryMatchUnknownFilename(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Match("payroll.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payroll.xlsx")
}

func TestRegistryByType(t *testing.T) {
	registry := newTestRegistry(t)

	proc, err := registry.ByType("VACATION")
	require.NoError(t, err)
	assert.Equal(t, "Subscribers on Vacation", proc.Name())

	_, err = registry.ByType("spreadsheet")
	require.Error(t, err)
}

func TestRegistryKnown(t *testing.T) {
	registry := newTestRegistry(t)
	assert.Equal(t, []string{"allsubscriber", "renewal", "vacation", "rates"}, registry.Known())
}

func TestValidateSniffsHeader(t *testing.T) {
	registry := newTestRegistry(t)
	proc, err := registry.ByType("allsubscriber")
	require.NoError(t, err)

	dir := t.TempDir()

	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte("title\nSUB NUM,Ed,ISS,DEL\n"), 0o644))
	assert.NoError(t, proc.Validate(good))

	wrong := filepath.Join(dir, "wrong.csv")
	require.NoError(t, os.WriteFile(wrong, []byte("this,is,something,else\n"), 0o644))
	assert.Error(t, proc.Validate(wrong))

	assert.Error(t, proc.Validate(filepath.Join(dir, "missing.csv")))
}

func TestRunTimesValidationFailures(t *testing.T) {
	registry := newTestRegistry(t)
	proc, err := registry.ByType("allsubscriber")
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("not,a,report\n"), 0o644))

	pr := Run(proc, bad, "bad.csv", models.UploadMeta{})
	assert.False(t, pr.Success())
	assert.Equal(t, "All Subscriber Report", pr.Processor)
	assert.Nil(t, pr.Result)
	assert.ErrorContains(t, pr.Err, "validation failed")
}

func TestValidateRejectsOversizeFile(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultImportConfig()
	cfg.MaxFileSizeBytes = 8
	registry := DefaultRegistry(db, cfg)

	proc, err := registry.ByType("allsubscriber")
	require.NoError(t, err)

	big := filepath.Join(t.TempDir(), "big.csv")
	require.NoError(t, os.WriteFile(big, []byte("SUB NUM,Ed,ISS,DEL\n"), 0o644))
	assert.Error(t, proc.Validate(big))
}

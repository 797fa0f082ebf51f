// services/summary.go
package services

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/gewnthar/circdash/models"
)

// BuildBusinessUnitSummary renders the per-business-unit snapshot summary
// shown on the upload result page.
func BuildBusinessUnitSummary(byBusinessUnit map[string]*models.BusinessUnitSummary) string {
	units := make([]string, 0, len(byBusinessUnit))
	for bu := range byBusinessUnit {
		units = append(units, bu)
	}
	sort.Strings(units)

	var b strings.Builder
	for _, bu := range units {
		data := byBusinessUnit[bu]
		papers := append([]string(nil), data.Papers...)
		sort.Strings(papers)

		b.WriteString(`<div class='border-l-4 border-blue-500 pl-3 mb-2'>`)
		fmt.Fprintf(&b, "<strong>%s</strong>: %d subscribers<br>",
			html.EscapeString(bu), data.TotalSubscribers)
		fmt.Fprintf(&b, "<span class='text-gray-600 text-xs'>Papers: %s (%d snapshots)</span>",
			html.EscapeString(strings.Join(papers, ", ")), data.SnapshotCount)
		b.WriteString(`</div>`)
	}
	return b.String()
}

// BuildRenewalSummary renders the per-type event counts for a renewal
// import.
func BuildRenewalSummary(stats map[string]int) string {
	types := make([]string, 0, len(stats))
	for t := range stats {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		b.WriteString(`<div class='border-l-4 border-green-500 pl-3 mb-2'>`)
		fmt.Fprintf(&b, "<strong>%s</strong>: %d events", html.EscapeString(t), stats[t])
		b.WriteString(`</div>`)
	}
	return b.String()
}

// AttachSummaryHTML fills in the result's summary from its business unit
// breakdown.
func AttachSummaryHTML(result *models.ImportResult) {
	if result == nil || len(result.ByBusinessUnit) == 0 {
		return
	}
	result.SummaryHTML = BuildBusinessUnitSummary(result.ByBusinessUnit)
}

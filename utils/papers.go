// utils/papers.go
package utils

import "strings"

// PaperInfo maps a Newzware edition code to its display name and the
// regional business unit it rolls up under.
type PaperInfo struct {
	Name         string
	BusinessUnit string
}

var papers = map[string]PaperInfo{
	"TJ":  {Name: "The Journal", BusinessUnit: "South Carolina"},
	"TA":  {Name: "The Advertiser", BusinessUnit: "Michigan"},
	"TR":  {Name: "The Ranger", BusinessUnit: "Wyoming"},
	"LJ":  {Name: "The Lander Journal", BusinessUnit: "Wyoming"},
	"WRN": {Name: "Wind River News", BusinessUnit: "Wyoming"},
	"FN":  {Name: "Former News", BusinessUnit: "Sold"},
}

// GetPaperInfo looks up a paper code (case-insensitive, trimmed). Unknown
// codes come back as themselves with an "Unknown" business unit so imports
// never fail on a new edition code.
func GetPaperInfo(code string) PaperInfo {
	upperCode := strings.ToUpper(strings.TrimSpace(code))
	if info, ok := papers[upperCode]; ok {
		return info
	}
	return PaperInfo{Name: upperCode, BusinessUnit: "Unknown"}
}

package uplan

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed performance.toml
var performanceTOML string

// Performance is the typical envelope of an airframe in a category.
type Performance struct {
	Category string  `toml:"category"`
	Airframe string  `toml:"airframe"`
	VMax     float64 `toml:"vmax"` // m/s
	MTOM     float64 `toml:"mtom"` // kg
}

var (
	perfOnce  sync.Once
	perfTable map[string]Performance
	perfErr   error
)

func loadPerformance() {
	var file struct {
		UAS []Performance `toml:"uas"`
	}
	if _, err := toml.Decode(performanceTOML, &file); err != nil {
		perfErr = fmt.Errorf("parsing performance table: %w", err)
		return
	}
	perfTable = make(map[string]Performance, len(file.UAS))
	for _, p := range file.UAS {
		perfTable[p.Category+"_"+p.Airframe] = p
	}
}

// LookupPerformance returns the table entry for a trajectory category
// ("Open A2", "PDRA_STS", ...) and airframe code ("MR", "FW").
func LookupPerformance(category, airframe string) (Performance, bool) {
	perfOnce.Do(loadPerformance)
	if perfErr != nil {
		return Performance{}, false
	}
	p, ok := perfTable[category+"_"+airframe]
	return p, ok
}

// schemaCategories maps trajectory naming to U-Plan category codes.
var schemaCategories = map[string]string{
	"Open A1":              "OPENA1",
	"Open A2":              "OPENA2",
	"Open A3":              "OPENA3",
	"Specific SAIL I-II":   "SAIL_I-II",
	"Specific SAIL III-IV": "SAIL_III-IV",
	"Specific SAIL V-VI":   "SAIL_V-VI",
	"PDRA_STS":             "SAIL_I-II",
}

// CategorySchema converts a trajectory category to its U-Plan code.
// Unknown categories fall back to OPENA1.
func CategorySchema(category string) string {
	if c, ok := schemaCategories[category]; ok {
		return c
	}
	return "OPENA1"
}

// IsKnownCategory reports whether code is a U-Plan category code.
func IsKnownCategory(code string) bool {
	for _, c := range schemaCategories {
		if c == code {
			return true
		}
	}
	return false
}

// AirframeSchema converts "MR"/"FW" to the U-Plan uasType.
func AirframeSchema(code string) string {
	switch code {
	case "MR":
		return "MULTIROTOR"
	case "FW":
		return "FIXED_WING"
	}
	return "NONE_NOT_DECLARED"
}

// FlightMode derives VLOS/BVLOS from a U-Plan category code.
func FlightMode(categoryCode string) string {
	if strings.Contains(categoryCode, "SAIL") {
		return "BVLOS"
	}
	return "VLOS"
}

// TrajectoryName is the information encoded in a trajectory file name such
// as "Open A2 MR_0021_Scan.csv".
type TrajectoryName struct {
	Category string
	Airframe string
	FlightID int
}

// ParseTrajectoryName extracts category, airframe and flight number.
// Missing parts are left zero.
func ParseTrajectoryName(name string) TrajectoryName {
	var info TrajectoryName
	name = strings.TrimSuffix(name, ".csv")

	parts := strings.Split(name, "_")
	if strings.HasPrefix(name, "PDRA_STS") {
		info.Category = "PDRA_STS"
		rest := strings.TrimPrefix(name, "PDRA_STS")
		rest = strings.TrimSpace(rest)
		if i := strings.Index(rest, "_"); i >= 0 {
			info.Airframe = rest[:i]
		}
		parts = strings.Split(rest, "_")
	} else if len(parts) > 1 {
		prefix := parts[0]
		if i := strings.LastIndex(prefix, " "); i >= 0 {
			info.Category = prefix[:i]
			info.Airframe = prefix[i+1:]
		} else {
			info.Category = prefix
		}
	}

	for _, p := range parts[1:] {
		if n, err := strconv.Atoi(p); err == nil {
			info.FlightID = n
			break
		}
	}
	return info
}

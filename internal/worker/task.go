package worker

import (
	"maps"

	"github.com/Hem-W/ERA5-toolbox/internal/naming"
)

// DownloadTask is the unit of work: what to fetch and how to name the
// result. Tasks are built once at orchestration time and never mutated.
type DownloadTask struct {
	// TemporalKey is the year or year-range the artifact covers.
	TemporalKey string

	// Variable is the API variable name, e.g. "2m_temperature".
	Variable string

	// Dataset is the remote dataset identifier.
	Dataset string

	// Level is the pressure level in hPa; "" for single-level datasets.
	Level string

	// ShortName is the canonical variable code for the file name.
	// When empty, the provisional name uses Variable and the true code
	// is resolved from the downloaded artifact.
	ShortName string

	// SkipExisting treats the task as satisfied when the final
	// artifact already exists.
	SkipExisting bool

	// RequestOverrides replace or extend the default request
	// parameters sent to the remote API.
	RequestOverrides map[string]any
}

// nameCode returns the variable code used for the provisional name.
func (t DownloadTask) nameCode() string {
	if t.ShortName != "" {
		return t.ShortName
	}
	return t.Variable
}

// ArtifactName returns the artifact name the task downloads to. For
// tasks without a short name this is the provisional name; the final
// name is settled after the variable code is resolved from the file.
func (t DownloadTask) ArtifactName(s naming.Scheme) string {
	return s.ArtifactName(t.nameCode(), t.Level, t.TemporalKey)
}

var monthsOfYear = []string{
	"01", "02", "03", "04", "05", "06", "07", "08", "09", "10", "11", "12",
}

var daysOfMonth = []string{
	"01", "02", "03", "04", "05", "06", "07", "08", "09", "10",
	"11", "12", "13", "14", "15", "16", "17", "18", "19", "20",
	"21", "22", "23", "24", "25", "26", "27", "28", "29", "30", "31",
}

var hoursOfDay = []string{
	"00:00", "01:00", "02:00", "03:00", "04:00", "05:00",
	"06:00", "07:00", "08:00", "09:00", "10:00", "11:00",
	"12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
	"18:00", "19:00", "20:00", "21:00", "22:00", "23:00",
}

// buildRequest assembles the request parameter map for one task:
// full-year hourly coverage in unarchived NetCDF, plus the pressure
// level for pressure-level datasets, with task overrides applied last.
func buildRequest(t DownloadTask) map[string]any {
	req := map[string]any{
		"product_type":    []string{"reanalysis"},
		"variable":        []string{t.Variable},
		"year":            []string{t.TemporalKey},
		"month":           monthsOfYear,
		"day":             daysOfMonth,
		"time":            hoursOfDay,
		"data_format":     "netcdf",
		"download_format": "unarchived",
	}
	if t.Level != "" {
		req["pressure_level"] = []string{t.Level}
	}
	maps.Copy(req, t.RequestOverrides)
	return req
}

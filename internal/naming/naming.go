package naming

import (
	"fmt"
	"strings"
)

// Scheme describes the fixed parts of the artifact naming convention.
// The resulting names follow
//
//	<prefix>.<code>.[<level>hpa.]<cadence>.<resolution>.<coverage>.<temporalKey>.<ext>
//
// which downstream tooling (resampling, derived-quantity computation)
// depends on. Changing the layout is a breaking change.
type Scheme struct {
	// Prefix is the dataset prefix, e.g. "era5.reanalysis".
	Prefix string

	// Cadence is the temporal cadence, e.g. "1hr".
	Cadence string

	// Resolution is the spatial resolution, e.g. "0p25deg".
	Resolution string

	// Coverage is the spatial coverage, e.g. "global".
	Coverage string

	// Ext is the file extension without the dot, e.g. "nc".
	Ext string
}

// DefaultScheme returns the scheme used for ERA5 reanalysis artifacts.
func DefaultScheme() Scheme {
	return Scheme{
		Prefix:     "era5.reanalysis",
		Cadence:    "1hr",
		Resolution: "0p25deg",
		Coverage:   "global",
		Ext:        "nc",
	}
}

// ArtifactName builds the canonical file name for one artifact.
// code is the variable code used in the name (short name, API variable
// name, or the code resolved from the downloaded file). level is the
// pressure level in hPa; pass "" for single-level datasets. temporalKey
// is the year or year-range the artifact covers.
func (s Scheme) ArtifactName(code, level, temporalKey string) string {
	var b strings.Builder
	b.WriteString(s.Prefix)
	b.WriteByte('.')
	b.WriteString(code)
	b.WriteByte('.')
	if level != "" {
		fmt.Fprintf(&b, "%shpa.", level)
	}
	b.WriteString(s.Cadence)
	b.WriteByte('.')
	b.WriteString(s.Resolution)
	b.WriteByte('.')
	b.WriteString(s.Coverage)
	b.WriteByte('.')
	b.WriteString(temporalKey)
	b.WriteByte('.')
	b.WriteString(s.Ext)
	return b.String()
}

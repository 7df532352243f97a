// Package model holds the small value types shared across the cache engine:
// samples, coverage intervals, and the settings that steer presentation.
package model

import "time"

// Sample is one (timestamp, value) pair returned by the upstream source.
// Value is absent when Valid is false; the core never distinguishes between
// "missing", "parse failure", NaN, or ±Inf once absent — all collapse here.
type Sample struct {
	TimestampMs int64
	Value       float64
	Valid       bool
}

// Interval is a closed [StartSec, EndSec] range in upstream seconds.
type Interval struct {
	StartSec int64
	EndSec   int64
}

// Empty reports whether the interval is inverted or zero-width.
func (iv Interval) Empty() bool {
	return iv.EndSec <= iv.StartSec
}

// TagInfo is one taglist entry as reported by the upstream source.
type TagInfo struct {
	Tag              string `json:"Tag"`
	Unit             string `json:"Unit"`
	RegisterDataType string `json:"RegisterDataType"`
}

// SiteSettings are presentation preferences. The core does not read them
// back: the WORKING build takes its offset and forward-fill flag from each
// /build_working_table request, and every field here round-trips for the UI
// unchanged.
type SiteSettings struct {
	DataOffset   float64 `json:"dataOffset"`
	ForwardFill  bool    `json:"forwardFill"`
	SortOrder    string  `json:"sortOrder,omitempty"`
	GroupingMode string  `json:"groupingMode,omitempty"`
	DarkMode     bool    `json:"darkMode,omitempty"`
	PollInterval float64 `json:"pollInterval,omitempty"`
	BargeName    string  `json:"bargeName,omitempty"`
	BargeNumber  string  `json:"bargeNumber,omitempty"`
	StartDate    string  `json:"startDate,omitempty"`
	EndDate      string  `json:"endDate,omitempty"`
}

// TagSettings are the three tag-keyed mappings consumed while building the
// working table.
type TagSettings struct {
	ScaleFactors map[string]float64 `json:"scale_factors"`
	MaxDecimal   map[string]int     `json:"max_decimal"`
	ErrorValue   map[string]float64 `json:"error_value"`
	// GlobalForwardFill is the UI's persisted default for the forward-fill
	// toggle. It is not read back by working.Build, which takes forwardFill
	// as an explicit per-request argument so a UI change takes effect on its
	// very next build call; this field only round-trips through
	// /tag_settings so the UI can restore the checkbox state on reload.
	GlobalForwardFill bool `json:"global_forward_fill"`
}

// NewTagSettings returns an empty-but-initialized TagSettings.
func NewTagSettings() TagSettings {
	return TagSettings{
		ScaleFactors: make(map[string]float64),
		MaxDecimal:   make(map[string]int),
		ErrorValue:   make(map[string]float64),
	}
}

// ScaleFactor returns the configured scale for tag, defaulting to 1.
func (ts TagSettings) ScaleFactor(tag string) float64 {
	if v, ok := ts.ScaleFactors[tag]; ok {
		return v
	}
	return 1
}

// MaxDecimalFor returns the configured rounding precision for tag, defaulting to 2.
func (ts TagSettings) MaxDecimalFor(tag string) int {
	if v, ok := ts.MaxDecimal[tag]; ok && v >= 0 {
		return v
	}
	return 2
}

// ErrorValueFor returns the sentinel error value for tag, if configured.
func (ts TagSettings) ErrorValueFor(tag string) (float64, bool) {
	v, ok := ts.ErrorValue[tag]
	return v, ok
}

// FormatTimestamp renders a UTC millisecond timestamp the way RAW/WORKING
// persist it: dd/MM/yyyy HH:mm:ss.
func FormatTimestamp(ms int64) string {
	t := time.UnixMilli(ms).UTC()
	return t.Format("02/01/2006 15:04:05")
}

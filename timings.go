package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
)

const (
	unitDataMarker = "const UNIT_DATA = "
	unitDataEnd    = "];"

	// freshThreshold is the duration in seconds below which a unit is
	// considered reused from cache.
	freshThreshold = 0.001
)

// UnitTiming is one compiled unit from cargo's --timings report.
type UnitTiming struct {
	Name     string  `json:"name"`
	Version  string  `json:"version"`
	Target   string  `json:"target"`
	Start    float64 `json:"start"`    // seconds from build start
	Duration float64 `json:"duration"` // seconds
}

// IsBuildScript reports whether the unit compiles or runs a build script.
func (u UnitTiming) IsBuildScript() bool {
	return strings.Contains(u.Target, "build script")
}

// rawUnit catches records with missing fields, which a plain decode into
// UnitTiming would silently zero.
type rawUnit struct {
	Name     *string  `json:"name"`
	Version  *string  `json:"version"`
	Target   *string  `json:"target"`
	Start    *float64 `json:"start"`
	Duration *float64 `json:"duration"`
}

// ExtractUnitData locates the UNIT_DATA array embedded in the timing HTML and
// returns it, including the closing bracket.
func ExtractUnitData(report string) (string, error) {
	start := strings.Index(report, unitDataMarker)
	if start < 0 {
		return "", &ReportParseError{Kind: MarkerNotFound, Record: -1, Msg: "UNIT_DATA not found in timing report"}
	}
	rest := report[start+len(unitDataMarker):]
	end := strings.Index(rest, unitDataEnd)
	if end < 0 {
		return "", &ReportParseError{Kind: MalformedPayload, Record: -1, Msg: "UNIT_DATA end not found"}
	}
	return rest[:end+1], nil
}

// DecodeUnitData decodes the UNIT_DATA array. A single bad record fails the
// whole decode.
func DecodeUnitData(payload string) ([]UnitTiming, error) {
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, &ReportParseError{Kind: MalformedPayload, Record: -1, Err: err}
	}

	units := make([]UnitTiming, 0, len(records))
	for i, rec := range records {
		var raw rawUnit
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, &ReportParseError{Kind: MalformedPayload, Record: i, Err: err}
		}
		if missing := raw.missingField(); missing != "" {
			return nil, &ReportParseError{Kind: MalformedPayload, Record: i, Msg: "missing field " + missing}
		}
		u := UnitTiming{
			Name:     *raw.Name,
			Version:  *raw.Version,
			Target:   *raw.Target,
			Start:    *raw.Start,
			Duration: *raw.Duration,
		}
		if math.IsNaN(u.Duration) || u.Duration < 0 {
			return nil, &ReportParseError{Kind: MalformedPayload, Record: i, Msg: fmt.Sprintf("invalid duration %v", u.Duration)}
		}
		units = append(units, u)
	}
	return units, nil
}

func (r rawUnit) missingField() string {
	switch {
	case r.Name == nil:
		return "name"
	case r.Version == nil:
		return "version"
	case r.Target == nil:
		return "target"
	case r.Start == nil:
		return "start"
	case r.Duration == nil:
		return "duration"
	}
	return ""
}

// ParseUnitData extracts and decodes the per-unit timings from a report.
func ParseUnitData(report string) ([]UnitTiming, error) {
	payload, err := ExtractUnitData(report)
	if err != nil {
		return nil, err
	}
	return DecodeUnitData(payload)
}

type crateKey struct {
	name    string
	version string
}

// unitAggregate accumulates the units of one crate.
type unitAggregate struct {
	start    float64 // earliest unit start, seconds
	duration float64 // summed unit durations, seconds
	units    int
}

func (a *unitAggregate) add(u UnitTiming) {
	if a.units == 0 || u.Start < a.start {
		a.start = u.Start
	}
	a.duration += u.Duration
	a.units++
}

// ReconcileTimings attributes unit timings to graph nodes by (name, version).
// Build scripts compile early and independently of the library, so a crate's
// timing comes from its non-build-script units when it has any.
func ReconcileTimings(graph *BuildGraph, units []UnitTiming) {
	libTimings := make(map[crateKey]*unitAggregate)
	allTimings := make(map[crateKey]*unitAggregate)

	for _, u := range units {
		key := crateKey{u.Name, u.Version}

		all, ok := allTimings[key]
		if !ok {
			all = &unitAggregate{}
			allTimings[key] = all
		}
		all.add(u)

		if u.IsBuildScript() {
			continue
		}
		lib, ok := libTimings[key]
		if !ok {
			lib = &unitAggregate{}
			libTimings[key] = lib
		}
		lib.add(u)
	}

	for _, node := range graph.Nodes {
		key := crateKey{node.Name, node.Version}
		agg := libTimings[key]
		if agg == nil || agg.units == 0 {
			agg = allTimings[key]
		}
		if agg == nil {
			continue
		}
		startMs := agg.start * 1000
		durationMs := agg.duration * 1000
		node.StartMs = &startMs
		node.DurationMs = &durationMs
		node.Fresh = agg.duration < freshThreshold
	}
}

// ApplyTimings parses a cargo timing report, applies it to the graph and
// computes the critical path. The graph is not modified if parsing fails.
func ApplyTimings(graph *BuildGraph, report string) error {
	units, err := ParseUnitData(report)
	if err != nil {
		return err
	}
	ReconcileTimings(graph, units)
	ComputeCriticalPath(graph)
	return nil
}

// ApplyTimingsFile reads the timing report at path and applies it.
func ApplyTimingsFile(graph *BuildGraph, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ReportMissingError{Path: path}
		}
		return fmt.Errorf("reading timing report: %w", err)
	}
	if err := ApplyTimings(graph, string(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

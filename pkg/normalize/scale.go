// Package normalize converts raw counts to per-day rates and maps them onto
// marker radii and colors.
//
// Radius uses one domain shared by every layer drawn together so marker sizes
// compare across datasets. Color uses each layer's own domain so every layer
// keeps its full gradient.
package normalize

import (
	"fmt"
	"math"

	"ctaridership/pkg/config"
	"ctaridership/pkg/types"
)

// Counting windows in days for each dataset.
const (
	BusWindowDays  = 1
	TaxiWindowDays = 5
	RailWindowDays = 353
)

// PerDay divides a raw count by its window length.
func PerDay(raw, windowDays float64) float64 {
	return raw / windowDays
}

// RadiusMode selects how a count becomes a marker radius.
type RadiusMode string

const (
	// RadiusSqrt is base + sqrt(v) * max/sqrt(globalMax).
	RadiusSqrt RadiusMode = "sqrt"
	// RadiusFixed draws every marker at the same size.
	RadiusFixed RadiusMode = "fixed"
	// RadiusSqrtClamped is max(base, sqrt(v)/2).
	RadiusSqrtClamped RadiusMode = "sqrt_clamped"
	// RadiusLinear is base + v/globalMax * (max-base).
	RadiusLinear RadiusMode = "linear"
)

// Basis selects which value feeds the radius.
type Basis string

const (
	BasisPerDay Basis = "per_day"
	BasisRaw    Basis = "raw"
)

// Scale assigns radii.
type Scale struct {
	Mode  RadiusMode
	Basis Basis
	Base  float64
	Max   float64
	Fixed float64
}

// ScaleFromConfig builds a Scale from its configuration section.
func ScaleFromConfig(cfg config.ScaleConfig) Scale {
	return Scale{
		Mode:  RadiusMode(cfg.Mode),
		Basis: Basis(cfg.Basis),
		Base:  cfg.BaseRadius,
		Max:   cfg.MaxRadius,
		Fixed: cfg.FixedRadius,
	}
}

// Domain is the [Min, Max] range of the radius basis over every group.
type Domain struct {
	Min float64
	Max float64
}

// Group is one dataset's records and the window they were counted over.
type Group struct {
	Records    []types.StopRecord
	WindowDays float64
}

// Apply normalizes every group. The radius domain is computed over all
// groups before any radius is assigned.
func (s Scale) Apply(groups []Group) ([][]types.NormalizedRecord, Domain, error) {
	if err := s.validate(); err != nil {
		return nil, Domain{}, err
	}

	out := make([][]types.NormalizedRecord, len(groups))
	for i, g := range groups {
		if g.WindowDays <= 0 {
			return nil, Domain{}, fmt.Errorf("group %d: window must be positive, got %v", i, g.WindowDays)
		}
		recs := make([]types.NormalizedRecord, len(g.Records))
		for j, r := range g.Records {
			recs[j] = types.NormalizedRecord{
				StopRecord:  r,
				CountPerDay: PerDay(r.RawCount, g.WindowDays),
			}
		}
		out[i] = recs
	}

	domain := s.domain(out)
	for _, recs := range out {
		for j := range recs {
			recs[j].Radius = s.Radius(s.basis(recs[j]), domain)
		}
	}
	return out, domain, nil
}

// Radius maps v onto a marker radius within domain. It is monotonic
// non-decreasing in v for every mode.
func (s Scale) Radius(v float64, domain Domain) float64 {
	switch s.Mode {
	case RadiusFixed:
		return s.Fixed
	case RadiusSqrtClamped:
		return math.Max(s.Base, math.Sqrt(math.Max(v, 0))/2)
	case RadiusLinear:
		if domain.Max <= 0 {
			return s.Base
		}
		rel := clamp(v/domain.Max, 0, 1)
		return s.Base + rel*(s.Max-s.Base)
	default:
		if domain.Max <= 0 {
			return s.Base
		}
		return s.Base + math.Sqrt(math.Max(v, 0))*(s.Max/math.Sqrt(domain.Max))
	}
}

func (s Scale) basis(r types.NormalizedRecord) float64 {
	if s.Basis == BasisRaw {
		return r.RawCount
	}
	return r.CountPerDay
}

func (s Scale) domain(groups [][]types.NormalizedRecord) Domain {
	d := Domain{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, recs := range groups {
		for _, r := range recs {
			v := s.basis(r)
			d.Min = math.Min(d.Min, v)
			d.Max = math.Max(d.Max, v)
		}
	}
	if math.IsInf(d.Min, 1) {
		return Domain{}
	}
	return d
}

func (s Scale) validate() error {
	switch s.Mode {
	case RadiusSqrt, RadiusFixed, RadiusSqrtClamped, RadiusLinear:
	default:
		return fmt.Errorf("unknown radius mode %q", s.Mode)
	}
	switch s.Basis {
	case BasisPerDay, BasisRaw:
	default:
		return fmt.Errorf("unknown radius basis %q", s.Basis)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

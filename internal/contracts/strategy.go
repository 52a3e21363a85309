package contracts

import (
	"errors"
	"fmt"
)

// ErrUnsupportedStrategy is returned for interval/region pairs with no registered strategy
var ErrUnsupportedStrategy = errors.New("unsupported interval/region combination")

// Interval is the bar period
type Interval string

const (
	Interval1d   Interval = "1d"
	Interval5min Interval = "5min"
)

// Region selects the market and its calendar
type Region string

const (
	RegionCN Region = "cn"
	RegionUS Region = "us"
)

// ParseInterval validates an interval name
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Interval1d, Interval5min:
		return Interval(s), nil
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

// ParseRegion validates a region name
func ParseRegion(s string) (Region, error) {
	switch Region(s) {
	case RegionCN, RegionUS:
		return Region(s), nil
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// Strategy is the provider request shape for one interval/region pair
type Strategy struct {
	Interval   Interval
	Region     Region
	Frequency  string // provider frequency code
	AdjustFlag string // provider adjustment basis, "2" = forward adjusted
	Indices    []string
}

type strategyKey struct {
	interval Interval
	region   Region
}

// strategies is resolved once at startup; unregistered pairs are rejected
var strategies = map[strategyKey]Strategy{
	{Interval1d, RegionCN}: {
		Interval:   Interval1d,
		Region:     RegionCN,
		Frequency:  "d",
		AdjustFlag: "2",
		Indices:    []string{"CSI100", "CSI300", "CSI500"},
	},
}

// ResolveStrategy returns the registered strategy for interval and region
func ResolveStrategy(interval Interval, region Region) (Strategy, error) {
	s, ok := strategies[strategyKey{interval, region}]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedStrategy, interval, region)
	}
	return s, nil
}

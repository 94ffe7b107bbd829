package results

import (
	"strconv"
	"strings"
)

// ComputeFlag grades a value against a reference range of the form "lo-hi",
// ">lo" or "<hi", with optional critical bounds checked first. Non-numeric
// values and unparseable ranges carry no flag.
func ComputeFlag(value string, refRange *string, criticalLow, criticalHigh *float64) *string {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	if criticalLow != nil && v <= *criticalLow {
		return flagPtr(FlagCritical)
	}
	if criticalHigh != nil && v >= *criticalHigh {
		return flagPtr(FlagCritical)
	}
	if refRange == nil {
		return nil
	}

	r := strings.TrimSpace(*refRange)
	switch {
	case strings.HasPrefix(r, ">"):
		lo, err := strconv.ParseFloat(strings.TrimSpace(r[1:]), 64)
		if err != nil {
			return nil
		}
		if v <= lo {
			return flagPtr(FlagLow)
		}
		return flagPtr(FlagNormal)
	case strings.HasPrefix(r, "<"):
		hi, err := strconv.ParseFloat(strings.TrimSpace(r[1:]), 64)
		if err != nil {
			return nil
		}
		if v >= hi {
			return flagPtr(FlagHigh)
		}
		return flagPtr(FlagNormal)
	}

	parts := strings.SplitN(r, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	lo, errLo := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	hi, errHi := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLo != nil || errHi != nil {
		return nil
	}
	switch {
	case v < lo:
		return flagPtr(FlagLow)
	case v > hi:
		return flagPtr(FlagHigh)
	}
	return flagPtr(FlagNormal)
}

func flagPtr(f string) *string {
	return &f
}

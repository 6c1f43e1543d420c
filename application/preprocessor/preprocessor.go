// Package preprocessor extracts chassis-code matches, make/model keyword
// recognition, and numeric-range filters (year, price, mileage) from a
// free-text query, producing a residual query string plus a FilterSet the
// caller's own filters are merged on top of.
package preprocessor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/thetangstr/vehiclesearch/domain"
)

// knownMakes and their common model lines, used for keyword recognition
// when no chassis code is present.
var knownMakes = map[string][]string{
	"honda":      {"civic", "accord", "s2000", "integra", "crv", "cr-v", "pilot", "odyssey"},
	"toyota":     {"corolla", "camry", "supra", "mr2", "86", "tacoma", "4runner", "tundra"},
	"nissan":     {"240sx", "silvia", "skyline", "gt-r", "gtr", "350z", "370z", "altima", "sentra"},
	"mazda":      {"miata", "mx-5", "rx-7", "rx7", "3", "6", "cx-5"},
	"subaru":     {"impreza", "wrx", "brz", "outback", "forester"},
	"mitsubishi": {"lancer", "evolution", "evo", "eclipse"},
	"bmw":        {"3 series", "m3", "5 series", "m5", "x5"},
	"ford":       {"mustang", "f-150", "f150", "focus", "explorer"},
	"chevrolet":  {"camaro", "corvette", "silverado", "tahoe"},
}

var (
	yearRangePattern = regexp.MustCompile(`\b(19[5-9]\d|20[0-4]\d)\s*-\s*(19[5-9]\d|20[0-4]\d)\b`)
	yearSinglePattern = regexp.MustCompile(`\b(19[5-9]\d|20[0-4]\d)\b`)
	underPricePattern = regexp.MustCompile(`(?i)under\s*\$?\s*([\d,]+)k?`)
	maxPricePattern   = regexp.MustCompile(`(?i)\$\s*([\d,]+)k?\b`)
	underMilesPattern = regexp.MustCompile(`(?i)under\s*([\d,]+)k?\s*(miles|mi\b)`)
)

// Result is the outcome of preprocessing a raw query string.
type Result struct {
	ResidualQuery string
	Filters       domain.FilterSet
	Chassis       *ChassisMatch
}

// Process extracts structured filters from a free-text query, in the
// order chassis code -> make/model keywords -> numeric ranges, removing
// every matched token from the residual query that gets passed on to
// source adapters as free text.
func Process(query string) Result {
	residual := query
	filters := domain.FilterSet{}
	var chassisResult *ChassisMatch

	if match, ok := ParseChassisCode(query); ok {
		filters.Make = match.Make
		filters.Model = []string{match.Model}
		filters.YearMin = match.YearMin
		filters.YearMax = match.YearMax
		chassisResult = &match
		residual = stripTokenCI(residual, match.Code)
	} else {
		lower := strings.ToLower(query)
		for make_, models := range knownMakes {
			if !strings.Contains(lower, make_) {
				continue
			}
			filters.Make = strings.Title(make_)
			residual = stripTokenCI(residual, make_)
			for _, model := range models {
				if strings.Contains(lower, model) {
					filters.Model = append(filters.Model, strings.Title(model))
					residual = stripTokenCI(residual, model)
				}
			}
			break
		}
	}

	if m := yearRangePattern.FindStringSubmatch(residual); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if lo > hi {
			lo, hi = hi, lo
		}
		filters.YearMin, filters.YearMax = lo, hi
		residual = stripToken(residual, m[0])
	} else if m := yearSinglePattern.FindStringSubmatch(residual); m != nil {
		year, _ := strconv.Atoi(m[1])
		filters.YearMin, filters.YearMax = year, year
		residual = stripToken(residual, m[0])
	}

	if m := underMilesPattern.FindStringSubmatch(residual); m != nil {
		if miles, ok := parseThousands(m[0], m[1]); ok {
			filters.MileageMax = miles
			residual = stripToken(residual, m[0])
		}
	}

	if m := underPricePattern.FindStringSubmatch(residual); m != nil {
		if price, ok := parseMoneyToken(m[0], m[1]); ok {
			filters.PriceMax = domain.PriceMinorUnits(price * 100)
			residual = stripToken(residual, m[0])
		}
	} else if m := maxPricePattern.FindStringSubmatch(residual); m != nil {
		if price, ok := parseMoneyToken(m[0], m[1]); ok {
			filters.PriceMax = domain.PriceMinorUnits(price * 100)
			residual = stripToken(residual, m[0])
		}
	}

	residual = strings.Join(strings.Fields(residual), " ")

	return Result{ResidualQuery: residual, Filters: filters, Chassis: chassisResult}
}

func parseMoneyToken(fullMatch, digits string) (int64, bool) {
	clean := strings.ReplaceAll(digits, ",", "")
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, false
	}
	if strings.HasSuffix(strings.ToLower(fullMatch), "k") {
		n *= 1000
	}
	return n, true
}

func parseThousands(fullMatch, digits string) (int, bool) {
	clean := strings.ReplaceAll(digits, ",", "")
	n, err := strconv.Atoi(clean)
	if err != nil {
		return 0, false
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(fullMatch)), "k miles") ||
		strings.Contains(strings.ToLower(fullMatch), "k mi") {
		n *= 1000
	}
	return n, true
}

func stripToken(s, token string) string {
	return strings.Replace(s, token, " ", 1)
}

func stripTokenCI(s, token string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(token))
	if idx < 0 {
		return s
	}
	return s[:idx] + " " + s[idx+len(token):]
}

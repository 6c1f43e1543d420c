package preprocessor

import "strings"

// chassisInfo is one entry in the chassis-code knowledge base, ported from
// the original findmycar CHASSIS_CODES table so enthusiast shorthand like
// "EK9" or "R34" resolves to make/model/year-range before the query ever
// reaches an upstream source.
type chassisInfo struct {
	Make    string
	Model   string
	YearMin int
	YearMax int
	Variant string
}

var chassisCodes = map[string]chassisInfo{
	// Honda Civic
	"EG6": {"Honda", "Civic", 1992, 1995, "SiR/VTi Hatchback"},
	"EG8": {"Honda", "Civic", 1992, 1995, "Sedan"},
	"EG9": {"Honda", "Civic", 1992, 1995, "Ferio"},
	"EK4": {"Honda", "Civic", 1996, 2000, "SiR"},
	"EK9": {"Honda", "Civic", 1997, 2000, "Type R"},
	"EM1": {"Honda", "Civic", 1999, 2000, "Si Coupe"},
	"EP3": {"Honda", "Civic", 2001, 2005, "Type R/Si"},
	"FD2": {"Honda", "Civic", 2006, 2011, "Type R"},
	"FK8": {"Honda", "Civic", 2017, 2021, "Type R"},
	"FL5": {"Honda", "Civic", 2022, 2024, "Type R"},

	// Honda Accord
	"CB7": {"Honda", "Accord", 1990, 1993, "4th Gen"},
	"CD5": {"Honda", "Accord", 1994, 1997, "5th Gen"},
	"CG":  {"Honda", "Accord", 1998, 2002, "6th Gen"},
	"CL7": {"Honda", "Accord", 2003, 2007, "Euro R"},
	"CL9": {"Honda", "Accord", 2003, 2007, "7th Gen"},

	// Honda S2000
	"AP1": {"Honda", "S2000", 1999, 2003, "2.0L"},
	"AP2": {"Honda", "S2000", 2004, 2009, "2.2L"},

	// Honda Integra/RSX
	"DC2": {"Honda", "Integra", 1994, 2001, "Type R"},
	"DC5": {"Honda", "RSX", 2002, 2006, "Type S"},

	// Toyota
	"AE86":  {"Toyota", "Corolla", 1983, 1987, "GT-S/Trueno"},
	"JZA80": {"Toyota", "Supra", 1993, 2002, "Mk4"},
	"JZA70": {"Toyota", "Supra", 1986, 1992, "Mk3"},
	"SW20":  {"Toyota", "MR2", 1990, 1999, "2nd Gen"},
	"ZZW30": {"Toyota", "MR2", 2000, 2007, "Spyder"},
	"GR86":  {"Toyota", "86", 2022, 2024, "GR"},
	"ZN6":   {"Toyota", "86", 2013, 2021, "GT86/FRS"},

	// Nissan
	"S13": {"Nissan", "240SX", 1989, 1994, "Silvia"},
	"S14": {"Nissan", "240SX", 1995, 1998, "Silvia"},
	"S15": {"Nissan", "Silvia", 1999, 2002, "Spec R"},
	"R32": {"Nissan", "Skyline", 1989, 1994, "GT-R"},
	"R33": {"Nissan", "Skyline", 1995, 1998, "GT-R"},
	"R34": {"Nissan", "Skyline", 1999, 2002, "GT-R"},
	"R35": {"Nissan", "GT-R", 2007, 2024, "GT-R"},
	"Z32": {"Nissan", "300ZX", 1990, 1996, "Twin Turbo"},
	"Z33": {"Nissan", "350Z", 2003, 2009, "350Z"},
	"Z34": {"Nissan", "370Z", 2009, 2020, "370Z"},

	// Mazda
	"NA": {"Mazda", "Miata", 1990, 1997, "MX-5"},
	"NB": {"Mazda", "Miata", 1998, 2005, "MX-5"},
	"NC": {"Mazda", "Miata", 2006, 2015, "MX-5"},
	"ND": {"Mazda", "Miata", 2016, 2024, "MX-5"},
	"FD": {"Mazda", "RX-7", 1992, 2002, "FD3S"},
	"FC": {"Mazda", "RX-7", 1986, 1991, "FC3S"},

	// Subaru
	"GC8": {"Subaru", "Impreza", 1992, 2000, "WRX/STI"},
	"GD":  {"Subaru", "Impreza", 2001, 2007, "WRX/STI"},
	"GR":  {"Subaru", "Impreza", 2008, 2014, "WRX/STI"},
	"VA":  {"Subaru", "WRX", 2015, 2021, "STI"},
	"VB":  {"Subaru", "WRX", 2022, 2024, "WRX"},
	"BRZ": {"Subaru", "BRZ", 2013, 2024, "BRZ"},

	// Mitsubishi
	"CP9A": {"Mitsubishi", "Lancer", 1996, 2001, "Evolution IV-VI"},
	"CT9A": {"Mitsubishi", "Lancer", 2001, 2007, "Evolution VII-IX"},
	"CZ4A": {"Mitsubishi", "Lancer", 2008, 2016, "Evolution X"},

	// BMW
	"E30": {"BMW", "3 Series", 1982, 1994, "E30"},
	"E36": {"BMW", "3 Series", 1990, 2000, "E36"},
	"E46": {"BMW", "3 Series", 1997, 2006, "E46"},
	"E90": {"BMW", "3 Series", 2005, 2013, "E90/E92/E93"},
	"F80": {"BMW", "M3", 2014, 2020, "F80"},
	"G80": {"BMW", "M3", 2021, 2024, "G80"},
}

// ChassisMatch is the resolved result of a chassis-code lookup.
type ChassisMatch struct {
	Code    string
	Make    string
	Model   string
	YearMin int
	YearMax int
	Variant string
}

// ParseChassisCode scans query (case-insensitively) for a known chassis
// code standing as a whole alphanumeric word and returns the first such
// word in query order, or ok=false when none of the table's codes appear.
func ParseChassisCode(query string) (ChassisMatch, bool) {
	words := strings.FieldsFunc(strings.ToUpper(query), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	for _, code := range words {
		if info, ok := chassisCodes[code]; ok {
			return ChassisMatch{
				Code:    code,
				Make:    info.Make,
				Model:   info.Model,
				YearMin: info.YearMin,
				YearMax: info.YearMax,
				Variant: info.Variant,
			}, true
		}
	}
	return ChassisMatch{}, false
}

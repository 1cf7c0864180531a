package analytics

import (
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GlobeFlag is shown for country codes without an entry in countryFlags.
const GlobeFlag = "🌍"

// UnknownCountry labels sessions without a resolved country code.
const UnknownCountry = "Unknown"

var countryFlags = map[string]string{
	"NL": "🇳🇱",
	"BE": "🇧🇪",
	"DE": "🇩🇪",
	"FR": "🇫🇷",
	"LU": "🇱🇺",
	"GB": "🇬🇧",
	"IE": "🇮🇪",
	"ES": "🇪🇸",
	"PT": "🇵🇹",
	"IT": "🇮🇹",
	"AT": "🇦🇹",
	"CH": "🇨🇭",
	"DK": "🇩🇰",
	"SE": "🇸🇪",
	"NO": "🇳🇴",
	"FI": "🇫🇮",
	"PL": "🇵🇱",
	"CZ": "🇨🇿",
	"HU": "🇭🇺",
	"RO": "🇷🇴",
	"BG": "🇧🇬",
	"GR": "🇬🇷",
	"TR": "🇹🇷",
	"UA": "🇺🇦",
	"RU": "🇷🇺",
	"US": "🇺🇸",
	"CA": "🇨🇦",
	"MX": "🇲🇽",
	"BR": "🇧🇷",
	"AR": "🇦🇷",
	"MA": "🇲🇦",
	"ZA": "🇿🇦",
	"IN": "🇮🇳",
	"CN": "🇨🇳",
	"JP": "🇯🇵",
	"KR": "🇰🇷",
	"ID": "🇮🇩",
	"SR": "🇸🇷",
	"CW": "🇨🇼",
	"AW": "🇦🇼",
	"AU": "🇦🇺",
	"NZ": "🇳🇿",
}

// countryFlag returns the flag glyph of an ISO alpha-2 code.
func countryFlag(code string) string {
	if flag, ok := countryFlags[strings.ToUpper(code)]; ok {
		return flag
	}
	return GlobeFlag
}

var countryQuery = sync.OnceValue(gountries.New)

type countryNamer struct {
	query *gountries.Query
	caser cases.Caser
	names map[string]string
}

func newCountryNamer() *countryNamer {
	return &countryNamer{
		query: countryQuery(),
		caser: cases.Upper(language.AmericanEnglish),
		names: make(map[string]string),
	}
}

// name returns the common English name of code, or the upper-cased code
// when it is not a known alpha-2 code.
func (n *countryNamer) name(code string) string {
	if code == "" || code == UnknownCountry {
		return UnknownCountry
	}
	if name, ok := n.names[code]; ok {
		return name
	}

	name := n.caser.String(code)
	if country, err := n.query.FindCountryByAlpha(code); err == nil {
		name = country.Name.Common
	}
	n.names[code] = name
	return name
}

package scraper

import (
	"regexp"
	"strings"
	"unicode"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

var (
	postalCodeRegexp = regexp.MustCompile(`\b\d{5}\b`)

	// streetLedRegexp matches "12 bis rue des Lilas 69003 Lyon"-style fragments.
	streetLedRegexp = regexp.MustCompile(`(?i)\b\d{1,4}(?:\s?(?:bis|ter))?,?\s+(?:rue|avenue|av\.|boulevard|bd|place|pl\.|chemin|all[ée]e|impasse|quai|route|cours|passage|square|faubourg)\b[^.;|·\n]*`)

	// capitalizedPhraseRegexp matches "Centre Commercial Part-Dieu, 69003 Lyon".
	capitalizedPhraseRegexp = regexp.MustCompile(`\p{Lu}[\p{L}'\-]*(?:\s+(?:de|du|des|la|le|d'|l')?\s*\p{Lu}[\p{L}'\-]*)+,?\s+\d{5}\s+\p{Lu}[\p{L}\-]+(?:\s\p{Lu}[\p{L}\-]+)*`)

	phoneRegexp = regexp.MustCompile(`(?:\+33\s?|0033\s?|\b0)[1-9](?:[\s.\-]?\d{2}){4}\b`)
)

// Address is a postal address split into its parts.
type Address struct {
	Street     string
	PostalCode string
	City       string
}

// ParseAddress splits a one-line address such as "12 Rue de Paris, 75001
// Paris" on its postal code. The postal code is the last 5-digit run that
// is followed by a city, so "BP 12345, 69003 Lyon" keeps the box number in
// the street. Anything after a comma following the city is dropped. When no
// postal code is found the raw string is kept as the street and the postal
// code is models.UnknownPostalCode.
func ParseAddress(raw string) Address {
	raw = utils.NormaliseText(raw)
	loc := postalCodeLocation(raw)
	if loc == nil {
		return Address{Street: raw, PostalCode: models.UnknownPostalCode}
	}

	street := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw[:loc[0]]), ","))
	city, _, _ := strings.Cut(raw[loc[1]:], ",")
	city = strings.TrimSpace(city)
	if street == "" && city == "" {
		return Address{Street: raw, PostalCode: models.UnknownPostalCode}
	}
	return Address{Street: street, PostalCode: raw[loc[0]:loc[1]], City: city}
}

// postalCodeLocation picks the postal code among the 5-digit runs of s: the
// last one followed by a city name, else the last one ending the string or
// a comma-separated part.
func postalCodeLocation(s string) []int {
	var withCity, bare []int
	for _, loc := range postalCodeRegexp.FindAllStringIndex(s, -1) {
		rest := strings.TrimLeft(s[loc[1]:], " ")
		switch {
		case rest == "" || rest[0] == ',':
			bare = loc
		case !unicode.IsDigit(rune(rest[0])):
			withCity = loc
		}
	}
	if withCity != nil {
		return withCity
	}
	return bare
}

// ExtractAddress pulls an address out of free text such as a search result
// snippet. It tries a street-number-led pattern first, then a capitalized
// place-name pattern. The result is intentionally low fidelity.
func ExtractAddress(text string) (Address, bool) {
	text = utils.NormaliseText(text)
	if m := streetLedRegexp.FindString(text); m != "" {
		addr := ParseAddress(m)
		if addr.PostalCode != models.UnknownPostalCode {
			return addr, true
		}
		return Address{Street: strings.TrimSpace(m), PostalCode: models.UnknownPostalCode}, true
	}
	if m := capitalizedPhraseRegexp.FindString(text); m != "" {
		return ParseAddress(m), true
	}
	return Address{}, false
}

// ExtractPhone returns the first French phone number found in text.
func ExtractPhone(text string) string {
	return strings.TrimSpace(phoneRegexp.FindString(text))
}

// ApplyAddress fills the address fields of r from a one-line address.
func ApplyAddress(r *models.RawListing, raw string) {
	addr := ParseAddress(raw)
	r.Address = addr.Street
	r.PostalCode = addr.PostalCode
	if addr.City != "" {
		r.City = addr.City
	}
}

package services

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// Field length limits, in runes.
const (
	MaxNameLength        = 200
	MaxAddressLength     = 300
	MaxCityLength        = 100
	MaxDescriptionLength = 2000
)

var (
	// frenchPhoneRegexp is a national number after digit stripping.
	frenchPhoneRegexp = regexp.MustCompile(`^0[1-9]\d{8}$`)
	emailRegexp       = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	postalCodeRegexp  = regexp.MustCompile(`^\d{5}$`)

	// opaqueSchemeRegexp matches "mailto:x" or "tel:+33..." but not a
	// "host:port" pair.
	opaqueSchemeRegexp = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:[^0-9]`)
)

// allowedPunctuation lists the non-alphanumeric runes kept in free text.
const allowedPunctuation = ".,'’-&/()#°+:;!?\""

// Cleaner normalises listing fields and blanks values that fail shape
// checks. Records whose name is empty after cleaning are dropped.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Process implements Stage. Cleaning an already clean listing changes nothing.
func (c *Cleaner) Process(_ context.Context, l *models.Listing) *models.Listing {
	l.Name = cleanText(l.Name, MaxNameLength)
	if l.Name == "" {
		c.logger.Debug("[cleaner] Dropping listing with empty name (source %s)", l.Source)
		return nil
	}

	l.Address = cleanText(l.Address, MaxAddressLength)
	l.City = cleanText(l.City, MaxCityLength)
	l.Description = cleanText(l.Description, MaxDescriptionLength)
	l.Category = cleanText(l.Category, MaxNameLength)
	l.PostalCode = cleanPostalCode(l.PostalCode)
	l.Phone = cleanPhone(l.Phone)
	l.Email = cleanEmail(l.Email)
	l.Website = cleanWebsite(l.Website)
	return l
}

// cleanText composes to NFC, drops disallowed runes, collapses whitespace
// and truncates.
func cleanText(s string, max int) string {
	s = utils.ComposeNFC(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(allowedPunctuation, r):
			return r
		default:
			return -1
		}
	}, s)
	s = utils.NormaliseText(s)
	return strings.TrimSpace(utils.Truncate(s, max))
}

// cleanPhone returns the ten-digit national form or "".
func cleanPhone(s string) string {
	digits := utils.DigitsOnly(s)
	switch {
	case strings.HasPrefix(digits, "0033") && len(digits) == 13:
		digits = "0" + digits[4:]
	case strings.HasPrefix(digits, "33") && len(digits) == 11:
		digits = "0" + digits[2:]
	}
	if !frenchPhoneRegexp.MatchString(digits) {
		return ""
	}
	return digits
}

func cleanEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "mailto:")
	if !emailRegexp.MatchString(s) {
		return ""
	}
	return s
}

// cleanWebsite keeps absolute http(s) URLs with a dotted host. A bare
// domain gets an https scheme; other schemes such as mailto: are blanked.
func cleanWebsite(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return ""
	}
	if !strings.Contains(s, "://") {
		if opaqueSchemeRegexp.MatchString(s) {
			return ""
		}
		s = "https://" + strings.TrimLeft(s, "/")
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.User != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func cleanPostalCode(s string) string {
	s = strings.TrimSpace(s)
	if !postalCodeRegexp.MatchString(s) {
		return models.UnknownPostalCode
	}
	return s
}

package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"repairshop-scraper/models"
	"repairshop-scraper/scraper"
	"repairshop-scraper/utils"
)

// Field names a listing attribute read from a result card.
type Field string

const (
	FieldName        Field = "name"
	FieldAddress     Field = "address"
	FieldPhone       Field = "phone"
	FieldWebsite     Field = "website"
	FieldCategory    Field = "category"
	FieldDescription Field = "description"
)

// Strategy reads one field from a result card. It returns "" when it does
// not apply so the next strategy can be tried.
type Strategy func(card *goquery.Selection) string

var postalSegmentRegexp = regexp.MustCompile(`\b\d{5}\b|(?i)\b\d{1,4}(?:\s?(?:bis|ter))?,?\s+(?:rue|avenue|av\.|boulevard|bd|place|chemin|all[ée]e|impasse|quai|route|cours)\b`)

// TextOf returns the trimmed text of the first element matching sel.
func TextOf(sel string) Strategy {
	return func(card *goquery.Selection) string {
		return utils.NormaliseText(card.Find(sel).First().Text())
	}
}

// AttrOf returns attr of the first element matching sel. An empty sel reads
// the card element itself.
func AttrOf(sel, attr string) Strategy {
	return func(card *goquery.Selection) string {
		target := card
		if sel != "" {
			target = card.Find(sel).First()
		}
		v, _ := target.Attr(attr)
		return utils.NormaliseText(v)
	}
}

// AttrTrimPrefix is AttrOf with prefix removed, e.g. "tel:" links.
func AttrTrimPrefix(sel, attr, prefix string) Strategy {
	read := AttrOf(sel, attr)
	return func(card *goquery.Selection) string {
		return strings.TrimSpace(strings.TrimPrefix(read(card), prefix))
	}
}

// SegmentMatching splits the text of every element matching sel on "·" and
// returns the first segment matching re.
func SegmentMatching(sel string, re *regexp.Regexp) Strategy {
	return func(card *goquery.Selection) string {
		var found string
		card.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, seg := range strings.Split(s.Text(), "·") {
				seg = utils.NormaliseText(seg)
				if seg != "" && re.MatchString(seg) {
					found = seg
					return false
				}
			}
			return true
		})
		return found
	}
}

// PhoneInText scans the card text for a French phone number.
func PhoneInText(sel string) Strategy {
	return func(card *goquery.Selection) string {
		return scraper.ExtractPhone(card.Find(sel).Text())
	}
}

// Extractor turns a results page into raw listings using ordered card
// selectors and ordered per-field strategies. The first non-empty value wins.
type Extractor struct {
	CardSelectors []string
	strategies    map[Field][]Strategy
}

// NewExtractor returns an Extractor preloaded with selectors for the maps
// results feed and a few generic directory layouts.
func NewExtractor() *Extractor {
	e := &Extractor{
		CardSelectors: []string{
			`div[role="feed"] div[role="article"]`,
			`div.Nv2PK`,
			`[data-result-card]`,
			`.listing-card`,
			`li.result`,
		},
		strategies: make(map[Field][]Strategy),
	}

	e.AddStrategy(FieldName, AttrOf("", "aria-label"))
	e.AddStrategy(FieldName, TextOf(".qBF1Pd"))
	e.AddStrategy(FieldName, AttrOf("a.hfpxzc", "aria-label"))
	e.AddStrategy(FieldName, TextOf("h3"))
	e.AddStrategy(FieldName, TextOf(".name"))

	e.AddStrategy(FieldAddress, TextOf(`[data-item-id="address"]`))
	e.AddStrategy(FieldAddress, TextOf("address"))
	e.AddStrategy(FieldAddress, TextOf(".address"))
	e.AddStrategy(FieldAddress, SegmentMatching(".W4Efsd", postalSegmentRegexp))

	e.AddStrategy(FieldPhone, AttrTrimPrefix(`a[href^="tel:"]`, "href", "tel:"))
	e.AddStrategy(FieldPhone, TextOf(".UsdlK"))
	e.AddStrategy(FieldPhone, TextOf(".phone"))
	e.AddStrategy(FieldPhone, PhoneInText(".W4Efsd"))

	e.AddStrategy(FieldWebsite, AttrOf(`a[data-value="Website"]`, "href"))
	e.AddStrategy(FieldWebsite, AttrOf("a.lcr4fd", "href"))
	e.AddStrategy(FieldWebsite, AttrOf("a.website", "href"))

	e.AddStrategy(FieldCategory, TextOf(".category"))
	e.AddStrategy(FieldCategory, AttrOf("", "data-category"))

	e.AddStrategy(FieldDescription, TextOf(".ah5Ghc"))
	e.AddStrategy(FieldDescription, TextOf(".description"))

	return e
}

// AddStrategy appends s to the strategies tried for f.
func (e *Extractor) AddStrategy(f Field, s Strategy) {
	e.strategies[f] = append(e.strategies[f], s)
}

func (e *Extractor) field(f Field, card *goquery.Selection) string {
	for _, s := range e.strategies[f] {
		if v := s(card); v != "" {
			return v
		}
	}
	return ""
}

// cards returns the matches of the first card selector that matches.
func (e *Extractor) cards(doc *goquery.Document) *goquery.Selection {
	for _, sel := range e.CardSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("__none__")
}

// Extract parses html and returns at most max listings. Cards without a name
// are skipped, as are repeats of a name and address already seen on the page.
// city fills the city of listings whose address carries none.
func (e *Extractor) Extract(html string, max int, city string) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	seen := utils.NewKeySet()
	var out []*models.RawListing
	e.cards(doc).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if max > 0 && len(out) >= max {
			return false
		}
		name := e.field(FieldName, card)
		if name == "" {
			return true
		}

		r := &models.RawListing{
			Name:        name,
			City:        city,
			Phone:       e.field(FieldPhone, card),
			Website:     e.field(FieldWebsite, card),
			Category:    e.field(FieldCategory, card),
			Description: e.field(FieldDescription, card),
			Source:      models.SourceBrowser,
		}
		scraper.ApplyAddress(r, e.field(FieldAddress, card))

		if !seen.Add(utils.MatchKey(r.Name) + "|" + utils.MatchKey(r.Address)) {
			return true
		}
		out = append(out, r)
		return true
	})
	return out, nil
}

package services

import (
	"strings"
	"unicode"

	"repairshop-scraper/utils"
)

// DefaultCategory is assigned when no keyword group matches.
const DefaultCategory = "general_repair"

type keywordGroup struct {
	category string
	keywords []string
}

// categoryGroups is checked in order; the first group with a matching
// keyword wins. Keywords are accent-free and match at a word start.
var categoryGroups = []keywordGroup{
	{"phone_repair", []string{"telephon", "smartphone", "iphone", "mobile", "gsm", "samsung galaxy"}},
	{"computer_repair", []string{"ordinateur", "informatique", "pc", "macbook", "imac", "laptop"}},
	{"console_repair", []string{"console", "playstation", "ps4", "ps5", "xbox", "nintendo"}},
	{"appliance_repair", []string{"electromenager", "lave linge", "lave vaisselle", "seche linge", "refrigerateur", "frigo", "micro onde"}},
	{"tv_audio_repair", []string{"televis", "tv", "hifi", "hi fi", "audio", "home cinema"}},
	{"bike_repair", []string{"velo", "cycle", "bicyclette", "trottinette"}},
	{"watch_jewelry_repair", []string{"horlog", "montre", "bijou", "joaill"}},
	{"shoe_repair", []string{"cordonn", "chaussure"}},
	{"clothing_repair", []string{"couture", "retouche", "tailleur", "vetement"}},
}

// InferCategory matches the listing text against the keyword groups.
func InferCategory(text string) string {
	padded := " " + categoryText(text) + " "
	for _, g := range categoryGroups {
		for _, kw := range g.keywords {
			if strings.Contains(padded, " "+kw) {
				return g.category
			}
		}
	}
	return DefaultCategory
}

// categoryText lowercases, folds accents and turns punctuation into spaces.
func categoryText(s string) string {
	s = strings.ToLower(utils.FoldAccents(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return utils.NormaliseText(s)
}

package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// topQualityCount is how many listings the report ranks.
const topQualityCount = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		BySource:       make(map[models.Source]int),
		ByCategory:     make(map[string]int),
		ListingsByCity: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var totalQuality, missingContact int
	for _, l := range listings {
		totalQuality += l.QualityScore
		report.BySource[l.Source]++

		category := l.InferredCategory
		if category == "" {
			category = DefaultCategory
		}
		report.ByCategory[category]++

		if l.City != "" {
			report.ListingsByCity[l.City]++
		}
		if l.Coordinates != nil {
			switch l.Coordinates.Accuracy {
			case models.AccuracyFallback:
				report.FallbackCount++
			default:
				report.GeocodedCount++
			}
		}
		if l.Phone == "" && l.Email == "" {
			missingContact++
		}
	}

	report.AverageQuality = round2(float64(totalQuality) / float64(len(listings)))
	report.MissingContactPc = round2(100 * float64(missingContact) / float64(len(listings)))

	ranked := make([]*models.Listing, len(listings))
	copy(ranked, listings)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QualityScore > ranked[j].QualityScore
	})
	if len(ranked) > topQualityCount {
		ranked = ranked[:topQualityCount]
	}
	report.TopQuality = ranked

	s.logger.Debug("[insights] Report over %d listings, average quality %.2f",
		report.TotalListings, report.AverageQuality)
	return report
}

// Print writes the report to stdout.
func (s *InsightService) Print(r *models.InsightReport) {
	s.Fprint(os.Stdout, r)
}

func (s *InsightService) Fprint(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 REPAIR SHOP INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Stored listings        : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  Average quality        : \033[1m%.2f\033[0m\n", r.AverageQuality)
	fmt.Fprintf(w, "  Geocoded / fallback    : \033[1m%d / %d\033[0m\n", r.GeocodedCount, r.FallbackCount)
	fmt.Fprintf(w, "  Without phone or email : \033[1m%.2f%%\033[0m\n", r.MissingContactPc)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Source\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, kc := range sortedCounts(sourceCounts(r.BySource)) {
		fmt.Fprintf(w, "  %-30s %d\n", kc.key, kc.count)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Category\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, kc := range sortedCounts(r.ByCategory) {
		fmt.Fprintf(w, "  %-30s %d\n", kc.key, kc.count)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top %d by Quality\033[0m\n", topQualityCount)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopQuality) == 0 {
		fmt.Fprintf(w, "  No listings stored\n")
	} else {
		for i, l := range r.TopQuality {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%3d\033[0m\n",
				i+1, truncate(l.Name, 38), l.QualityScore)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by City\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByCity) == 0 {
		fmt.Fprintf(w, "  No city data\n")
	} else {
		for _, kc := range sortedCounts(r.ListingsByCity) {
			bar := strings.Repeat("█", kc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(kc.key, 28), bar, kc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders by count descending, then key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, c := range m {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func sourceCounts(m map[models.Source]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

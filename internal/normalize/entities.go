package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

// Entity type tags.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityLocation     = "location"
	EntityMoney        = "money"
	EntityPercentage   = "percentage"
	EntityDate         = "date"
	EntityTicker       = "ticker"
)

var (
	moneyRe   = regexp.MustCompile(`\$\d[\d,]*(?:\.\d+)?\s*(?:thousand|million|billion|trillion|[KMBT])?`)
	percentRe = regexp.MustCompile(`\d+(?:\.\d+)?\s?(?:%|percent)`)
	dateRe    = regexp.MustCompile(`(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s*\d{4})?`)
	tickerRe  = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	capSeqRe  = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+(?:[A-Z][a-z]+|of|the|&))*\b`)
)

// orgSuffixes mark a capitalized sequence as an organization.
var orgSuffixes = []string{
	"Inc", "Corp", "Corporation", "Ltd", "LLC", "Group", "Bank",
	"Holdings", "Partners", "Capital", "Technologies", "Systems",
	"Industries", "Media", "Labs", "Ventures", "Co",
}

// knownLocations is a minimal gazetteer for location tagging.
var knownLocations = map[string]bool{
	"new york": true, "london": true, "tokyo": true, "beijing": true,
	"washington": true, "brussels": true, "paris": true, "berlin": true,
	"san francisco": true, "hong kong": true, "singapore": true,
	"shanghai": true, "moscow": true, "dubai": true, "mumbai": true,
	"united states": true, "china": true, "japan": true, "germany": true,
	"france": true, "india": true, "russia": true, "brazil": true,
	"europe": true, "asia": true, "california": true, "texas": true,
}

// financialContextWords gate ticker extraction: a bare uppercase token is
// only a ticker when the surrounding text talks about markets.
var financialContextWords = []string{
	"stock", "shares", "ticker", "nasdaq", "nyse", "trading", "ipo",
	"earnings", "market", "investor", "equity", "dividend",
}

// tickerStoplist holds uppercase tokens that are common abbreviations,
// not ticker symbols.
var tickerStoplist = map[string]bool{
	"CEO": true, "CFO": true, "CTO": true, "USA": true, "USD": true,
	"GDP": true, "API": true, "AI": true, "IPO": true, "EU": true,
	"UK": true, "US": true, "UN": true, "TV": true, "PC": true,
	"RSS": true, "URL": true, "HTML": true, "FAQ": true, "ETF": true,
}

// ExtractEntities pulls named entities with confidence scores from text.
// Results are deduplicated by (lowercased name, type) and capped at maxN
// entries, highest confidence first.
func ExtractEntities(text string, maxN int) []storage.Entity {
	if text == "" {
		return nil
	}
	if maxN <= 0 {
		maxN = 20
	}

	var found []storage.Entity

	for _, m := range moneyRe.FindAllString(text, -1) {
		found = append(found, storage.Entity{Name: m, Type: EntityMoney, Confidence: 0.9})
	}
	for _, m := range percentRe.FindAllString(text, -1) {
		found = append(found, storage.Entity{Name: m, Type: EntityPercentage, Confidence: 0.95})
	}
	for _, m := range dateRe.FindAllString(text, -1) {
		found = append(found, storage.Entity{Name: m, Type: EntityDate, Confidence: 0.85})
	}

	lower := strings.ToLower(text)
	hasFinancialContext := false
	for _, w := range financialContextWords {
		if strings.Contains(lower, w) {
			hasFinancialContext = true
			break
		}
	}
	if hasFinancialContext {
		for _, m := range tickerRe.FindAllString(text, -1) {
			if tickerStoplist[m] {
				continue
			}
			found = append(found, storage.Entity{Name: m, Type: EntityTicker, Confidence: 0.7})
		}
	}

	for _, m := range capSeqRe.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		words := strings.Fields(m)
		switch {
		case knownLocations[strings.ToLower(m)]:
			found = append(found, storage.Entity{Name: m, Type: EntityLocation, Confidence: 0.75})
		case hasOrgSuffix(words):
			found = append(found, storage.Entity{Name: m, Type: EntityOrganization, Confidence: 0.8})
		case len(words) >= 2 && len(words) <= 3:
			found = append(found, storage.Entity{Name: m, Type: EntityPerson, Confidence: 0.6})
		case len(words) == 1 && len(m) > 3:
			// Single capitalized word: weakly assume an organization name
			found = append(found, storage.Entity{Name: m, Type: EntityOrganization, Confidence: 0.4})
		}
	}

	return dedupeEntities(found, maxN)
}

func hasOrgSuffix(words []string) bool {
	if len(words) == 0 {
		return false
	}
	last := strings.TrimSuffix(words[len(words)-1], ".")
	for _, suffix := range orgSuffixes {
		if last == suffix {
			return true
		}
	}
	return false
}

// dedupeEntities keeps the highest-confidence entry per (name, type) key
// and returns the top maxN by confidence.
func dedupeEntities(entities []storage.Entity, maxN int) []storage.Entity {
	best := make(map[string]storage.Entity)
	for _, e := range entities {
		key := strings.ToLower(e.Name) + "\x00" + e.Type
		if cur, ok := best[key]; !ok || e.Confidence > cur.Confidence {
			best[key] = e
		}
	}

	out := make([]storage.Entity, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxN {
		out = out[:maxN]
	}
	return out
}

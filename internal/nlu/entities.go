package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EntityType names a slot extracted from an utterance.
type EntityType string

const (
	EntityAmount      EntityType = "AMOUNT"
	EntityDate        EntityType = "DATE"
	EntityDescription EntityType = "DESCRIPTION"
	EntityCategory    EntityType = "CATEGORY"
	EntityParty       EntityType = "PARTY"
)

// Entity is one extracted slot with its own confidence, independent of the
// overall command score.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}

var (
	currencyAmountRE = regexp.MustCompile(`(?:₹|\$|rs\.?|inr|usd)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	suffixAmountRE   = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:rupees?|rs\b|dollars?|bucks)`)
	bareNumberRE     = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

	numericDateRE = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`)
	dayMonthRE    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	monthDayRE    = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)

	descriptionRE = regexp.MustCompile(`\b(?:for|towards|on)\s+(.+?)(?:\s+(?:under|category|as|from|to|with|on|today|yesterday|tomorrow)\b.*)?$`)
	categoryRE    = regexp.MustCompile(`\b(?:under|in category|as category|category)\s+(.+?)(?:\s+(?:for|from|to|with|on|today|yesterday|tomorrow)\b.*)?$`)
	partySpanRE   = regexp.MustCompile(`\b(?:from|to|with|paid to)\s+((?:[A-Z][A-Za-z]*)(?:\s+[A-Z][A-Za-z]*)*)`)
)

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// extractAmount returns the first monetary value in the utterance. Currency
// markers raise confidence over bare numbers. Date-shaped digit runs are
// skipped so "15/03/2024" never yields an amount of 15.
func extractAmount(normalized string) (Entity, bool) {
	if m := currencyAmountRE.FindStringSubmatch(normalized); m != nil {
		if v, ok := parseMoney(m[1]); ok {
			return Entity{Type: EntityAmount, Value: v, Confidence: 0.9}, true
		}
	}
	if m := suffixAmountRE.FindStringSubmatch(normalized); m != nil {
		if v, ok := parseMoney(m[1]); ok {
			return Entity{Type: EntityAmount, Value: v, Confidence: 0.9}, true
		}
	}
	for _, loc := range bareNumberRE.FindAllStringIndex(normalized, -1) {
		if datePart(normalized, loc[0], loc[1]) {
			continue
		}
		if v, ok := parseMoney(normalized[loc[0]:loc[1]]); ok {
			return Entity{Type: EntityAmount, Value: v, Confidence: 0.75}, true
		}
	}
	return Entity{}, false
}

// datePart reports whether the digit run at [start, end) is adjacent to a
// date separator.
func datePart(s string, start, end int) bool {
	if start > 0 && (s[start-1] == '/' || s[start-1] == '-') {
		return true
	}
	if end < len(s) && (s[end] == '/' || s[end] == '-') {
		return true
	}
	return false
}

func parseMoney(raw string) (string, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

// extractDate resolves the first date reference to ISO form. Relative words
// are the most reliable signal, then explicit numeric dates, then month names.
func extractDate(normalized string, now time.Time) (Entity, bool) {
	switch {
	case containsWord(normalized, "today"):
		return dateEntity(now, 0.95), true
	case containsWord(normalized, "yesterday"):
		return dateEntity(now.AddDate(0, 0, -1), 0.95), true
	case containsWord(normalized, "tomorrow"):
		return dateEntity(now.AddDate(0, 0, 1), 0.95), true
	}

	if m := numericDateRE.FindStringSubmatch(normalized); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		if t, ok := validDate(year, time.Month(month), day); ok {
			return dateEntity(t, 0.85), true
		}
	}

	if m := dayMonthRE.FindStringSubmatch(normalized); m != nil {
		day, _ := strconv.Atoi(m[1])
		if t, ok := validDate(now.Year(), monthNumbers[m[2]], day); ok {
			return dateEntity(t, 0.8), true
		}
	}
	if m := monthDayRE.FindStringSubmatch(normalized); m != nil {
		day, _ := strconv.Atoi(m[2])
		if t, ok := validDate(now.Year(), monthNumbers[m[1]], day); ok {
			return dateEntity(t, 0.8), true
		}
	}
	return Entity{}, false
}

func validDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func dateEntity(t time.Time, confidence float64) Entity {
	return Entity{Type: EntityDate, Value: t.Format("2006-01-02"), Confidence: confidence}
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		leftOK := start == 0 || !isWordByte(s[start-1])
		rightOK := end == len(s) || !isWordByte(s[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// extractDescription captures the free-text object of the utterance, the
// span after "for", "towards" or "on" up to the next structural keyword.
func extractDescription(normalized string) (Entity, bool) {
	m := descriptionRE.FindStringSubmatch(normalized)
	if m == nil {
		return Entity{}, false
	}
	value := cleanSpan(m[1])
	if value == "" {
		return Entity{}, false
	}
	// Pure numbers are amounts and date literals are dates, not descriptions.
	if _, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err == nil {
		return Entity{}, false
	}
	if numericDateRE.MatchString(value) && len(numericDateRE.FindString(value)) == len(value) {
		return Entity{}, false
	}
	return Entity{Type: EntityDescription, Value: value, Confidence: 0.7}, true
}

// extractCategory captures an explicit category phrase ("under fuel").
func extractCategory(normalized string) (Entity, bool) {
	m := categoryRE.FindStringSubmatch(normalized)
	if m == nil {
		return Entity{}, false
	}
	value := cleanSpan(m[1])
	if value == "" {
		return Entity{}, false
	}
	return Entity{Type: EntityCategory, Value: value, Confidence: 0.8}, true
}

func cleanSpan(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".,!?")
	s = strings.TrimPrefix(s, "the ")
	s = strings.TrimPrefix(s, "a ")
	s = strings.TrimPrefix(s, "an ")
	return strings.TrimSpace(s)
}

// extractParty finds a counterparty: a capitalized span after a linking
// preposition in the raw text, canonicalized through the vocabulary when a
// mapping exists, otherwise a direct vocabulary hit anywhere in the text.
func extractParty(raw, normalized string, terms []vocabTerm) (Entity, bool) {
	if m := partySpanRE.FindStringSubmatch(raw); m != nil {
		span := strings.TrimSpace(m[1])
		spoken := strings.ToLower(span)
		for _, t := range terms {
			if t.spoken == spoken {
				return Entity{Type: EntityParty, Value: t.mapped, Confidence: 0.85}, true
			}
		}
		return Entity{Type: EntityParty, Value: span, Confidence: 0.8}, true
	}
	for _, t := range terms {
		if !partyCategory(t.category) {
			continue
		}
		if containsWord(normalized, t.spoken) {
			return Entity{Type: EntityParty, Value: t.mapped, Confidence: 0.85}, true
		}
	}
	return Entity{}, false
}

func partyCategory(category string) bool {
	switch category {
	case "party", "customer", "supplier", "vendor", "company":
		return true
	}
	return false
}

// dedupeEntities keeps the first entity of each type, preserving order.
func dedupeEntities(entities []Entity) []Entity {
	seen := make(map[EntityType]bool, len(entities))
	out := entities[:0]
	for _, e := range entities {
		if seen[e.Type] {
			continue
		}
		seen[e.Type] = true
		out = append(out, e)
	}
	return out
}

// formatAmount renders an entity value for spoken confirmation prompts.
func formatAmount(value string) string {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

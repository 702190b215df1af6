package tables

import (
	"fmt"
	"strings"

	"github.com/c360studio/policypipe/document"
)

// tableRule scores one table type from header keywords plus optional page
// context. Rules are checked in order; the highest score wins.
type tableRule struct {
	tableType       document.TableType
	headerKeywords  []string
	contextKeywords []string
	minHits         int
	weight          float64
	disqualifiers   []string
}

// tableRules in priority order. The SOV rule is deliberately strict: SOV
// misclassification poisons downstream TIV aggregation, so it needs three
// header hits and refuses tables that carry policy or claim columns.
var tableRules = []tableRule{
	{
		tableType:       document.TableLossRun,
		headerKeywords:  []string{"claim", "loss date", "date of loss", "paid", "reserved", "incurred", "status"},
		contextKeywords: []string{"loss run", "loss history", "claims history"},
		minHits:         2,
		weight:          1.0,
	},
	{
		tableType:       document.TableAutoSchedule,
		headerKeywords:  []string{"vin", "vehicle", "make", "model", "year", "garaging"},
		contextKeywords: []string{"covered autos", "vehicle schedule"},
		minHits:         2,
		weight:          1.0,
	},
	{
		tableType:       document.TablePropertySOV,
		headerKeywords:  []string{"tiv", "total insured value", "building", "contents", "business income", "construction", "year built", "location", "address", "occupancy"},
		contextKeywords: []string{"statement of values", "schedule of values"},
		minHits:         3,
		weight:          1.0,
		disqualifiers:   []string{"policy number", "claim"},
	},
	{
		tableType:       document.TableInlandMarineSchedule,
		headerKeywords:  []string{"equipment", "serial", "item", "scheduled", "description", "model"},
		contextKeywords: []string{"inland marine", "scheduled equipment", "contractors equipment"},
		minHits:         3,
		weight:          0.9,
	},
	{
		tableType:       document.TablePremiumSchedule,
		headerKeywords:  []string{"premium", "rate", "exposure", "coverage", "line of business"},
		contextKeywords: []string{"premium schedule", "rating basis"},
		minHits:         2,
		weight:          0.9,
	},
}

// ClassifyTable assigns a table type from header and page-context evidence.
// Tables that match no rule at its minimum hit count come back as "other"
// rather than a low-confidence guess.
func ClassifyTable(t *document.TableJSON, pageText string) document.TableClassification {
	headers := strings.ToLower(strings.Join(headerTexts(t), " | "))
	context := strings.ToLower(pageText)

	best := document.TableClassification{
		TableID:   t.TableID,
		Type:      document.TableOther,
		Reasoning: "no rule matched",
	}
	bestScore := 0.0

	for _, rule := range tableRules {
		if disqualified(headers, rule.disqualifiers) {
			continue
		}

		hits := countHits(headers, rule.headerKeywords)
		if hits < rule.minHits {
			continue
		}

		score := rule.weight * float64(hits) / float64(len(rule.headerKeywords))
		ctxHits := countHits(context, rule.contextKeywords)
		if ctxHits > 0 {
			score += 0.15
		}

		if score > bestScore {
			bestScore = score
			confidence := 0.5 + score
			if confidence > 0.95 {
				confidence = 0.95
			}
			best = document.TableClassification{
				TableID:    t.TableID,
				Type:       rule.tableType,
				Confidence: confidence,
				Reasoning:  fmt.Sprintf("%d/%d header keywords, %d context hits", hits, len(rule.headerKeywords), ctxHits),
			}
		}
	}

	return best
}

func countHits(haystack string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			hits++
		}
	}
	return hits
}

func disqualified(headers string, disqualifiers []string) bool {
	for _, d := range disqualifiers {
		if strings.Contains(headers, d) {
			return true
		}
	}
	return false
}

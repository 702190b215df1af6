package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360studio/policypipe/document"
)

// DeterministicParser scans chunk text with curated regex families. It is
// the backstop for LLM extraction: cheap, precise, and blind to anything
// outside its patterns.
type DeterministicParser struct {
	policyNumbers []*regexp.Regexp
	namedInsured  *regexp.Regexp
	dates         []datePattern
	carriers      []string
}

type datePattern struct {
	re      *regexp.Regexp
	layouts []string
}

// knownCarriers are matched as proper names anywhere in the text.
var knownCarriers = []string{
	"Travelers", "Chubb", "Hartford", "Liberty Mutual", "Zurich",
	"CNA", "Nationwide", "Hanover", "Cincinnati Insurance", "AmTrust",
	"Berkshire Hathaway", "Great American", "Philadelphia Insurance",
	"Erie Insurance", "Westfield",
}

// NewDeterministicParser compiles the pattern families.
func NewDeterministicParser() *DeterministicParser {
	return &DeterministicParser{
		policyNumbers: []*regexp.Regexp{
			// Labeled: "Policy Number: BP-4429871", "Policy No. 680-1234567"
			regexp.MustCompile(`(?i)policy\s*(?:number|no\.?|#)\s*[:\s]\s*([A-Z0-9][A-Z0-9\-/]{4,24})`),
			// Common carrier prefixes standing alone.
			regexp.MustCompile(`\b((?:BP|CPP|CGL|WC|CA|UMB|POL)[-\s]?\d{5,12})\b`),
		},
		namedInsured: regexp.MustCompile(`(?i)named\s+insured\s*[:\s]\s*([A-Z][A-Za-z0-9 .,&'\-]{2,80}?)(?:\n|$|\s{2,})`),
		dates: []datePattern{
			{regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`), []string{"2006-01-02"}},
			{regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`), []string{"01/02/2006", "1/2/2006"}},
			{regexp.MustCompile(`\b(\d{1,2}\.\d{1,2}\.\d{4})\b`), []string{"02.01.2006", "2.1.2006"}},
			{regexp.MustCompile(`\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`),
				[]string{"January 2, 2006", "January 2 2006"}},
		},
		carriers: knownCarriers,
	}
}

// ParseMentions extracts entity mentions from one chunk.
func (p *DeterministicParser) ParseMentions(chunk *document.HybridChunk) []document.EntityMention {
	var mentions []document.EntityMention
	text := chunk.Text

	for _, re := range p.policyNumbers {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			raw := text[m[2]:m[3]]
			mentions = append(mentions, document.EntityMention{
				Type:            document.EntityPolicy,
				RawText:         raw,
				NormalizedValue: strings.ToUpper(strings.TrimSpace(raw)),
				Confidence:      0.9,
				SpanStart:       m[2],
				SpanEnd:         m[3],
				ChunkID:         chunk.ChunkID,
				Source:          document.MentionSourceDeterministic,
				Attributes:      map[string]any{"policy_number": strings.ToUpper(strings.TrimSpace(raw))},
			})
		}
	}

	for _, m := range p.namedInsured.FindAllStringSubmatchIndex(text, -1) {
		raw := strings.TrimRight(strings.TrimSpace(text[m[2]:m[3]]), ".,")
		mentions = append(mentions, document.EntityMention{
			Type:            document.EntityOrganization,
			RawText:         raw,
			NormalizedValue: raw,
			Confidence:      0.85,
			SpanStart:       m[2],
			SpanEnd:         m[3],
			ChunkID:         chunk.ChunkID,
			Source:          document.MentionSourceDeterministic,
			Attributes:      map[string]any{"role": "insured"},
		})
	}

	for _, dp := range p.dates {
		for _, m := range dp.re.FindAllStringSubmatchIndex(text, -1) {
			raw := text[m[2]:m[3]]
			normalized, ok := normalizeDate(raw, dp.layouts)
			if !ok {
				continue
			}
			mentions = append(mentions, document.EntityMention{
				Type:            document.EntityPolicy,
				RawText:         raw,
				NormalizedValue: normalized,
				Confidence:      0.7,
				SpanStart:       m[2],
				SpanEnd:         m[3],
				ChunkID:         chunk.ChunkID,
				Source:          document.MentionSourceDeterministic,
				Attributes:      map[string]any{"date": normalized},
			})
		}
	}

	for _, carrier := range p.carriers {
		if idx := strings.Index(text, carrier); idx >= 0 {
			mentions = append(mentions, document.EntityMention{
				Type:            document.EntityOrganization,
				RawText:         carrier,
				NormalizedValue: carrier,
				Confidence:      0.8,
				SpanStart:       idx,
				SpanEnd:         idx + len(carrier),
				ChunkID:         chunk.ChunkID,
				Source:          document.MentionSourceDeterministic,
				Attributes:      map[string]any{"role": "carrier"},
			})
		}
	}

	return mentions
}

func normalizeDate(raw string, layouts []string) (string, bool) {
	s := strings.ReplaceAll(raw, ",", ", ")
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range layouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02"), true
		}
	}
	return "", false
}

// Reconcile merges LLM mentions with deterministic mentions. Mentions are
// keyed by (type, folded normalized value); the LLM wins on collisions and
// parser mentions fill the gaps. The returned slice keeps the parser
// mentions' Source marker so callers can count the backstop.
func Reconcile(llmMentions, parsed []document.EntityMention) []document.EntityMention {
	type key struct {
		t document.EntityType
		v string
	}

	seen := make(map[key]bool, len(llmMentions))
	merged := make([]document.EntityMention, 0, len(llmMentions)+len(parsed))

	for _, m := range llmMentions {
		seen[key{m.Type, document.NormalizeKey(m.NormalizedValue)}] = true
		merged = append(merged, m)
	}
	for _, m := range parsed {
		k := key{m.Type, document.NormalizeKey(m.NormalizedValue)}
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, m)
	}
	return merged
}

// mentionsFromEntities projects synthesized entities back into mention form
// for reconciliation.
func mentionsFromEntities(entities []document.DomainEntity) []document.EntityMention {
	mentions := make([]document.EntityMention, 0, len(entities))
	for _, e := range entities {
		chunkID := ""
		if len(e.ChunkIDs) > 0 {
			chunkID = e.ChunkIDs[0]
		}
		mentions = append(mentions, document.EntityMention{
			Type:            e.Type,
			RawText:         e.Name,
			NormalizedValue: e.Name,
			Confidence:      e.Confidence,
			ChunkID:         chunkID,
			Source:          document.MentionSourceLLM,
			Attributes:      e.Attributes,
		})
	}
	return mentions
}

// Package pageanalysis decides which pages of a document are worth full
// OCR and extraction. It computes cheap per-page signals, classifies pages
// with keyword rules, detects near-duplicate pages, and assembles the page
// manifest whose page-to-section map is authoritative for every later
// stage.
package pageanalysis

import (
	"hash/fnv"
	"math/bits"
	"regexp"
	"strings"

	"github.com/c360studio/policypipe/document"
)

// referencePageChars is the character capacity of a dense letter-size page,
// used to normalize text density into [0,1].
const referencePageChars = 3000

// shingleSize is the word-window width for the lexical fingerprint.
const shingleSize = 3

var (
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	tableRowPattern   = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	columnarPattern   = regexp.MustCompile(`\S+( {2,}\S+){3,}`)
)

// ComputeSignal derives the lightweight features for one page from its raw
// text. This runs before OCR, on text from the cheap PDF pass, so it must
// tolerate sparse or garbled input.
func ComputeSignal(documentID string, pageNumber int, text string) document.PageSignal {
	charCount := len(strings.TrimSpace(text))

	density := float64(charCount) / referencePageChars
	if density > 1 {
		density = 1
	}

	return document.PageSignal{
		DocumentID:  documentID,
		PageNumber:  pageNumber,
		TextDensity: density,
		HasTables:   looksTabular(text),
		Fingerprint: lexicalFingerprint(text),
		CharCount:   charCount,
	}
}

// ComputeSignals derives signals for every page in order.
func ComputeSignals(documentID string, pageTexts []string) []document.PageSignal {
	signals := make([]document.PageSignal, len(pageTexts))
	for i, text := range pageTexts {
		signals[i] = ComputeSignal(documentID, i+1, text)
	}
	return signals
}

// looksTabular reports whether the raw text contains table-shaped content:
// markdown pipe rows or repeated multi-column whitespace alignment.
func looksTabular(text string) bool {
	if len(tableRowPattern.FindAllString(text, 3)) >= 2 {
		return true
	}
	return len(columnarPattern.FindAllString(text, 4)) >= 3
}

// lexicalFingerprint computes a 64-bit simhash over word shingles. Pages
// with nearly identical wording land within a few bits of each other, which
// is what duplicate detection compares.
func lexicalFingerprint(text string) string {
	words := normalizeWords(text)
	if len(words) == 0 {
		return ""
	}

	var counts [64]int
	limit := len(words) - shingleSize + 1
	if limit < 1 {
		limit = 1
	}
	for i := 0; i < limit; i++ {
		end := i + shingleSize
		if end > len(words) {
			end = len(words)
		}
		h := fnv.New64a()
		h.Write([]byte(strings.Join(words[i:end], " ")))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<bit) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}

	var sig uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			sig |= 1 << bit
		}
	}

	return fingerprintString(sig)
}

func normalizeWords(text string) []string {
	lowered := strings.ToLower(text)
	lowered = nonAlnumPattern.ReplaceAllString(lowered, " ")
	lowered = whitespacePattern.ReplaceAllString(lowered, " ")
	lowered = strings.TrimSpace(lowered)
	if lowered == "" {
		return nil
	}
	return strings.Split(lowered, " ")
}

const hexDigits = "0123456789abcdef"

func fingerprintString(sig uint64) string {
	var b [16]byte
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[sig&0xf]
		sig >>= 4
	}
	return string(b[:])
}

// FingerprintDistance returns the hamming distance between two
// fingerprints, or -1 when either is empty or malformed.
func FingerprintDistance(a, b string) int {
	ua, okA := parseFingerprint(a)
	ub, okB := parseFingerprint(b)
	if !okA || !okB {
		return -1
	}
	return bits.OnesCount64(ua ^ ub)
}

func parseFingerprint(s string) (uint64, bool) {
	if len(s) != 16 {
		return 0, false
	}
	var v uint64
	for i := 0; i < 16; i++ {
		c := s[i]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

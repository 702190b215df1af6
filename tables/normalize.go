package tables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/policypipe/document"
)

// sovField names a canonical SOV column.
type sovField string

const (
	sovLocation     sovField = "location_number"
	sovAddress      sovField = "address"
	sovBuilding     sovField = "building_value"
	sovContents     sovField = "contents_value"
	sovBI           sovField = "business_income"
	sovTIV          sovField = "total_insured_value"
	sovConstruction sovField = "construction_type"
	sovYearBuilt    sovField = "year_built"
)

// sovHeaderAliases maps carrier header variants to canonical fields.
// Matching is contains-based on the folded header, first alias wins, so more
// specific aliases must come before their substrings.
var sovHeaderAliases = []struct {
	alias string
	field sovField
}{
	{"total insured value", sovTIV},
	{"tiv", sovTIV},
	{"total value", sovTIV},
	{"business income", sovBI},
	{"bi/ee", sovBI},
	{"building", sovBuilding},
	{"real property", sovBuilding},
	{"contents", sovContents},
	{"personal property", sovContents},
	{"bpp", sovContents},
	{"construction", sovConstruction},
	{"year built", sovYearBuilt},
	{"yr built", sovYearBuilt},
	{"loc", sovLocation},
	{"bldg", sovLocation},
	{"address", sovAddress},
	{"street", sovAddress},
	{"location", sovAddress},
}

type lossField string

const (
	lossClaimNumber lossField = "claim_number"
	lossDate        lossField = "loss_date"
	lossDescription lossField = "description"
	lossPaid        lossField = "paid_amount"
	lossReserved    lossField = "reserved"
	lossIncurred    lossField = "total_incurred"
	lossStatus      lossField = "status"
)

var lossHeaderAliases = []struct {
	alias string
	field lossField
}{
	{"claim number", lossClaimNumber},
	{"claim no", lossClaimNumber},
	{"claim #", lossClaimNumber},
	{"claim", lossClaimNumber},
	{"date of loss", lossDate},
	{"loss date", lossDate},
	{"dol", lossDate},
	{"total incurred", lossIncurred},
	{"incurred", lossIncurred},
	{"paid", lossPaid},
	{"reserve", lossReserved},
	{"outstanding", lossReserved},
	{"description", lossDescription},
	{"cause of loss", lossDescription},
	{"status", lossStatus},
}

// NormalizeSOV converts a classified property_sov table into SOVItem rows.
// Rows that fail domain validation are skipped with a warning rather than
// failing the whole table.
func NormalizeSOV(t *document.TableJSON) ([]document.SOVItem, []string) {
	headers := headerTexts(t)
	columns := make(map[int]sovField)
	for col, h := range headers {
		folded := strings.ToLower(strings.TrimSpace(h))
		for _, a := range sovHeaderAliases {
			if strings.Contains(folded, a.alias) {
				if _, taken := columnTaken(columns, a.field); !taken {
					columns[col] = a.field
				}
				break
			}
		}
	}

	var items []document.SOVItem
	var warnings []string

	for i, row := range bodyRows(t) {
		item := document.SOVItem{
			DocumentID: t.DocumentID,
			TableID:    t.TableID,
		}
		populated := false

		for col, field := range columns {
			text, ok := row[col]
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			populated = true

			switch field {
			case sovLocation:
				item.LocationNumber = strings.TrimSpace(text)
			case sovAddress:
				item.Address = strings.TrimSpace(text)
			case sovBuilding:
				item.BuildingValue = parseMoney(text)
			case sovContents:
				item.ContentsValue = parseMoney(text)
			case sovBI:
				item.BusinessIncome = parseMoney(text)
			case sovTIV:
				item.TotalInsured = parseMoney(text)
			case sovConstruction:
				item.ConstructionType = strings.TrimSpace(text)
			case sovYearBuilt:
				if y, err := strconv.Atoi(digitsOnly(text)); err == nil {
					item.YearBuilt = y
				}
			}
		}

		if !populated {
			continue
		}
		// TIV omitted by some carriers; derive it from the components.
		if item.TotalInsured == 0 {
			item.TotalInsured = item.BuildingValue + item.ContentsValue + item.BusinessIncome
		}
		if err := item.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("sov row %d skipped: %v", i+1, err))
			continue
		}
		items = append(items, item)
	}

	return items, warnings
}

// NormalizeLossRun converts a classified loss_run table into claim rows.
func NormalizeLossRun(t *document.TableJSON) ([]document.LossRunClaim, []string) {
	headers := headerTexts(t)
	columns := make(map[int]lossField)
	for col, h := range headers {
		folded := strings.ToLower(strings.TrimSpace(h))
		for _, a := range lossHeaderAliases {
			if strings.Contains(folded, a.alias) {
				columns[col] = a.field
				break
			}
		}
	}

	var claims []document.LossRunClaim
	var warnings []string

	for i, row := range bodyRows(t) {
		claim := document.LossRunClaim{
			DocumentID: t.DocumentID,
			TableID:    t.TableID,
		}
		populated := false

		for col, field := range columns {
			text, ok := row[col]
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			populated = true

			switch field {
			case lossClaimNumber:
				claim.ClaimNumber = strings.TrimSpace(text)
			case lossDate:
				if d, err := ParseDate(text); err == nil {
					claim.LossDate = &d
				} else {
					warnings = append(warnings, fmt.Sprintf("loss run row %d: unparseable date %q", i+1, text))
				}
			case lossDescription:
				claim.Description = strings.TrimSpace(text)
			case lossPaid:
				claim.PaidAmount = parseMoney(text)
			case lossReserved:
				claim.Reserved = parseMoney(text)
			case lossIncurred:
				claim.TotalIncurred = parseMoney(text)
			case lossStatus:
				claim.Status = strings.ToLower(strings.TrimSpace(text))
			}
		}

		if !populated {
			continue
		}
		if claim.TotalIncurred == 0 {
			claim.TotalIncurred = claim.PaidAmount + claim.Reserved
		}
		claims = append(claims, claim)
	}

	return claims, warnings
}

var moneyCleaner = regexp.MustCompile(`[$,\s]`)

// parseMoney handles "$1,234,567", "(500)" negatives, and bare numbers.
// Unparseable values come back as zero.
func parseMoney(text string) float64 {
	s := moneyCleaner.ReplaceAllString(strings.TrimSpace(text), "")
	if s == "" || s == "-" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if negative {
		return -v
	}
	return v
}

func digitsOnly(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dateLayouts covers the formats seen across carrier loss runs.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/06",
}

// ParseDate tries the known carrier date formats in order.
func ParseDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date format: %q", s)
}

func columnTaken(columns map[int]sovField, field sovField) (int, bool) {
	for col, f := range columns {
		if f == field {
			return col, true
		}
	}
	return 0, false
}

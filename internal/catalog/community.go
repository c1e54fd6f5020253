package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Care levels form a closed set. Every loaded row must carry one of them.
const (
	CareIndependentLiving = "Independent Living"
	CareAssistedLiving    = "Assisted Living"
	CareMemoryCare        = "Memory Care"
)

// Apartment categories form a closed set derived from free-text apartment
// descriptions on load.
const (
	AptStudio          = "studio"
	AptOneBedroom      = "1BR"
	AptTwoBedroom      = "2BR"
	AptDoubleOccupancy = "double-occupancy"
	AptUnknown         = "unknown"
)

var zipRe = regexp.MustCompile(`^\d{5}$`)

// UpfrontCosts groups the one-time fees charged at move-in. SecondPersonFee
// is monthly and may be absent, which matters for couple ranking.
type UpfrontCosts struct {
	Deposit         float64  `json:"deposit"`
	MoveInFee       float64  `json:"move_in_fee"`
	CommunityFee    float64  `json:"community_fee"`
	PetFee          float64  `json:"pet_fee"`
	SecondPersonFee *float64 `json:"second_person_fee"`
}

// Community is one normalized row of the catalog workbook.
type Community struct {
	ID                 int               `json:"community_id"`
	Name               string            `json:"community_name,omitempty"`
	CareLevel          string            `json:"care_level"`
	MonthlyFee         float64           `json:"monthly_fee"`
	Upfront            UpfrontCosts      `json:"upfront_costs"`
	ZIP                string            `json:"zip_code,omitempty"`
	ApartmentType      string            `json:"apartment_type,omitempty"`
	ApartmentCategory  string            `json:"apartment_type_category"`
	WaitlistStatus     string            `json:"waitlist_status,omitempty"`
	AvailabilityScore  int               `json:"availability_score"`
	WorksWithPlacement bool              `json:"works_with_placement"`
	ContractRate       float64           `json:"contract_rate"`
	WillingnessScore   int               `json:"willingness_score"`
	Enhanced           bool              `json:"enhanced"`
	Enriched           bool              `json:"enriched"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// ValidCareLevel reports whether the value belongs to the closed care-level set.
func ValidCareLevel(level string) bool {
	switch level {
	case CareIndependentLiving, CareAssistedLiving, CareMemoryCare:
		return true
	}
	return false
}

// parseMoney accepts "$3,090", "3090.50", "3090" and empty values.
func parseMoney(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, "$", "")
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseFlag accepts the Yes/No and true/false spellings seen in the workbook.
func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "y", "1":
		return true
	}
	return false
}

// parseRate reads a commission fraction; percent spellings are scaled down.
func parseRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "no") {
		return 0
	}
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if percent || v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cleanZIP normalizes workbook ZIP values, including floats like "14526.0"
// produced by spreadsheet tools. Returns "" when the value is unusable.
func cleanZIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) > 5 {
		raw = raw[:5]
	}
	if !zipRe.MatchString(raw) {
		return ""
	}
	return raw
}

// waitlistScore maps free-text waitlist buckets to the 0..99 availability
// scale, lower meaning sooner.
func waitlistScore(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return 99
	case strings.Contains(s, "available"):
		return 0
	case strings.Contains(s, "<1 month"), strings.Contains(s, "less than 1 month"), strings.Contains(s, "under 1 month"):
		return 15
	case strings.Contains(s, "1-3 month"), strings.Contains(s, "1–3 month"), strings.Contains(s, "1-2 month"):
		return 45
	case strings.Contains(s, "3-6 month"), strings.Contains(s, "3–6 month"):
		return 75
	default:
		return 99
	}
}

// NormalizeApartment buckets a free-text apartment description into the
// closed tag set. Shared with the extractor so client preferences and
// catalog rows land in the same vocabulary.
func NormalizeApartment(raw string) string {
	return apartmentCategory(raw)
}

// apartmentCategory buckets free-text apartment descriptions by keyword.
func apartmentCategory(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return AptUnknown
	case strings.Contains(s, "studio"), strings.Contains(s, "efficiency"):
		return AptStudio
	case strings.Contains(s, "2 bed"), strings.Contains(s, "2br"), strings.Contains(s, "two bed"):
		return AptTwoBedroom
	case strings.Contains(s, "1 bed"), strings.Contains(s, "1br"), strings.Contains(s, "one bed"):
		return AptOneBedroom
	case strings.Contains(s, "double"), strings.Contains(s, "shared"), strings.Contains(s, "companion"):
		return AptDoubleOccupancy
	default:
		return AptUnknown
	}
}

// normalizeRow turns one raw workbook row into a Community. The error names
// the offending column so load-time skips are explainable.
func normalizeRow(raw map[string]string) (Community, error) {
	var c Community

	idRaw := strings.TrimSpace(raw[ColCommunityID])
	if i := strings.IndexByte(idRaw, '.'); i >= 0 {
		idRaw = idRaw[:i]
	}
	id, err := strconv.Atoi(idRaw)
	if err != nil || id < 0 {
		return c, fmt.Errorf("invalid %s: %q", ColCommunityID, raw[ColCommunityID])
	}
	c.ID = id

	c.CareLevel = strings.TrimSpace(raw[ColCareLevel])
	if !ValidCareLevel(c.CareLevel) {
		return c, fmt.Errorf("invalid %s: %q", ColCareLevel, raw[ColCareLevel])
	}

	fee, ok := parseMoney(raw[ColMonthlyFee])
	if !ok || fee < 0 {
		return c, fmt.Errorf("invalid %s: %q", ColMonthlyFee, raw[ColMonthlyFee])
	}
	c.MonthlyFee = fee

	c.Name = strings.TrimSpace(raw[ColCommunityName])
	c.ZIP = cleanZIP(raw[ColZIP])
	c.WaitlistStatus = strings.TrimSpace(raw[ColWaitlist])
	c.AvailabilityScore = waitlistScore(raw[ColWaitlist])
	c.WorksWithPlacement = parseFlag(raw[ColWorksWithPlacement])
	c.ContractRate = parseRate(raw[ColContractRate])
	c.Enhanced = parseFlag(raw[ColEnhanced])
	c.Enriched = parseFlag(raw[ColEnriched])
	c.ApartmentType = strings.TrimSpace(raw[ColApartmentType])
	c.ApartmentCategory = apartmentCategory(raw[ColApartmentType])

	if c.WorksWithPlacement {
		c.WillingnessScore = 10
	}

	c.Upfront.Deposit, _ = parseMoney(raw[ColDeposit])
	c.Upfront.MoveInFee, _ = parseMoney(raw[ColMoveInFee])
	c.Upfront.CommunityFee, _ = parseMoney(raw[ColCommunityFee])
	c.Upfront.PetFee, _ = parseMoney(raw[ColPetFee])
	if fee, ok := parseMoney(raw[ColSecondPersonFee]); ok {
		c.Upfront.SecondPersonFee = &fee
	}

	for col, val := range raw {
		if requiredColumns[col] {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]string)
		}
		c.Extra[col] = val
	}

	return c, nil
}

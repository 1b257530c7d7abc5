package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// emailPattern is an RFC-like email shape check, not full RFC 5322
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// phonePattern allows digits plus common separators
var phonePattern = regexp.MustCompile(`^[0-9+\-().\s]+$`)

// insuranceTypeSynonyms maps normalized free-text plan names to canonical
// insurance types. Keys are lowercased with punctuation and whitespace
// stripped, so "Medicare-Advantage" and "medicare advantage" both hit
// the same entry.
var insuranceTypeSynonyms = map[string]models.InsuranceType{
	"medicare":           models.InsuranceTypeMedicareAdvantage,
	"medicareadvantage":  models.InsuranceTypeMedicareAdvantage,
	"medicareadv":        models.InsuranceTypeMedicareAdvantage,
	"mapd":               models.InsuranceTypeMedicareAdvantage,
	"medicaresupplement": models.InsuranceTypeMedicareSupp,
	"medicaresupp":       models.InsuranceTypeMedicareSupp,
	"medigap":            models.InsuranceTypeMedicareSupp,
	"life":               models.InsuranceTypeLife,
	"lifeinsurance":      models.InsuranceTypeLife,
	"termlife":           models.InsuranceTypeLife,
	"wholelife":          models.InsuranceTypeLife,
	"finalexpense":       models.InsuranceTypeFinalExpense,
	"burial":             models.InsuranceTypeFinalExpense,
	"burialinsurance":    models.InsuranceTypeFinalExpense,
	"health":             models.InsuranceTypeHealth,
	"healthinsurance":    models.InsuranceTypeHealth,
	"aca":                models.InsuranceTypeHealth,
	"marketplace":        models.InsuranceTypeHealth,
	"auto":               models.InsuranceTypeAuto,
	"autoinsurance":      models.InsuranceTypeAuto,
	"car":                models.InsuranceTypeAuto,
	"carinsurance":       models.InsuranceTypeAuto,
	"home":               models.InsuranceTypeHome,
	"homeinsurance":      models.InsuranceTypeHome,
	"homeowners":         models.InsuranceTypeHome,
}

// estimatedBaseValues is the base dollar value per canonical insurance type
var estimatedBaseValues = map[models.InsuranceType]float64{
	models.InsuranceTypeMedicareAdvantage: 1200,
	models.InsuranceTypeMedicareSupp:      1000,
	models.InsuranceTypeLife:              900,
	models.InsuranceTypeFinalExpense:      700,
	models.InsuranceTypeHealth:            600,
	models.InsuranceTypeHome:              500,
	models.InsuranceTypeAuto:              400,
	models.InsuranceTypeOther:             250,
}

// sourceQualityScores awards intake points by acquisition channel
var sourceQualityScores = map[string]int{
	"LANDING_PAGE": 10,
	"GOOGLE_ADS":   8,
	"META_ADS":     7,
	"TIKTOK_ADS":   5,
	"REFERRAL":     10,
}

// MapInsuranceType normalizes a free-text plan type to a canonical
// insurance type. Total: unmatched or empty input yields OTHER.
func MapInsuranceType(planType string) models.InsuranceType {
	normalized := normalizeTypeKey(planType)
	if normalized == "" {
		return models.InsuranceTypeOther
	}
	if t, ok := insuranceTypeSynonyms[normalized]; ok {
		return t
	}
	return models.InsuranceTypeOther
}

// normalizeTypeKey lowercases and strips everything except letters/digits
func normalizeTypeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidationResult is the outcome of validating universal lead data
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// ValidateLeadData checks required fields and formats. It never fails
// fast: the full error list is always returned.
func ValidateLeadData(data *models.UniversalLeadData) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []string{}}

	if strings.TrimSpace(data.Email) == "" {
		result.Errors = append(result.Errors, "email is required")
	} else if !emailPattern.MatchString(data.Email) {
		result.Errors = append(result.Errors, "email format is invalid")
	}

	if strings.TrimSpace(data.FirstName) == "" {
		result.Errors = append(result.Errors, "firstName is required")
	}

	if strings.TrimSpace(data.Source) == "" {
		result.Errors = append(result.Errors, "source is required")
	}

	if data.Phone != "" && !phonePattern.MatchString(data.Phone) {
		result.Errors = append(result.Errors, "phone contains invalid characters")
	}

	if data.Age < 0 || data.Age > 120 {
		result.Errors = append(result.Errors, "age must be between 0 and 120")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// CalculateLeadScore computes the intake heuristic score, clamped to
// [0,100]. This is the quick signal attached at ingestion; the
// rule-driven scoring engine produces the operational score.
func CalculateLeadScore(data *models.UniversalLeadData) int {
	score := 0

	// Required-field base
	if data.Email != "" && data.FirstName != "" && data.Source != "" {
		score += 10
	}

	// Contact completeness
	if data.Phone != "" {
		score += 10
	}
	if data.LastName != "" {
		score += 5
	}

	// Age brackets; 65+ weighted heavily for Medicare eligibility
	switch {
	case data.Age >= 65:
		score += 20
	case data.Age >= 50:
		score += 10
	case data.Age >= 30:
		score += 5
	}

	// Insurance-type specificity
	if data.InsuranceType != "" || data.PlanType != "" {
		raw := data.InsuranceType
		if raw == "" {
			raw = data.PlanType
		}
		if MapInsuranceType(raw) != models.InsuranceTypeOther {
			score += 10
		} else {
			score += 3
		}
	}

	// Engagement signals
	pageScore := data.PageViews * 2
	if pageScore > 10 {
		pageScore = 10
	}
	score += pageScore

	if data.SessionDuration >= 300 {
		score += 5
	}
	if data.FormCompletionTime > 0 && data.FormCompletionTime <= 120 {
		score += 5
	}

	// Source quality
	if points, ok := sourceQualityScores[strings.ToUpper(data.Source)]; ok {
		score += points
	} else if data.Source != "" {
		score += 3
	}

	// Attribution
	if data.UTMCampaign != "" || data.Campaign != "" {
		score += 5
	}

	// Repeat visits, capped
	visitScore := data.PreviousVisits * 2
	if visitScore > 6 {
		visitScore = 6
	}
	score += visitScore

	// Priority override addition
	switch data.Priority {
	case models.PriorityUrgent:
		score += 10
	case models.PriorityHigh:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// GenerateLeadTags derives human-readable tags from the lead data.
// Pure string construction; empty values produce no tag.
func GenerateLeadTags(data *models.UniversalLeadData) []string {
	var tags []string

	switch {
	case data.Age >= 65:
		tags = append(tags, "Senior-65+")
	case data.Age >= 50:
		tags = append(tags, "Age-50-64")
	case data.Age > 0:
		tags = append(tags, "Under-50")
	}

	if data.Source != "" {
		tags = append(tags, "Source-"+strings.ToUpper(data.Source))
	}

	insType := data.InsuranceType
	if insType == "" {
		insType = data.PlanType
	}
	if insType != "" {
		tags = append(tags, "Type-"+string(MapInsuranceType(insType)))
	}

	if data.PageViews >= 3 || data.SessionDuration >= 300 {
		tags = append(tags, "High-Engagement")
	}

	if data.State != "" {
		tags = append(tags, "State-"+strings.ToUpper(data.State))
	}
	if data.City != "" {
		tags = append(tags, "City-"+data.City)
	}

	campaign := data.UTMCampaign
	if campaign == "" {
		campaign = data.Campaign
	}
	if campaign != "" {
		tags = append(tags, "Campaign-"+campaign)
	}

	if data.Priority != "" {
		tags = append(tags, "Priority-"+string(data.Priority))
	}

	return tags
}

// CalculateEstimatedValue derives a dollar value from the canonical
// insurance type's base value scaled by the heuristic score
func CalculateEstimatedValue(data *models.UniversalLeadData) float64 {
	raw := data.InsuranceType
	if raw == "" {
		raw = data.PlanType
	}

	base := estimatedBaseValues[MapInsuranceType(raw)]
	score := CalculateLeadScore(data)

	return base * float64(score) / 100
}

// ProcessOptions tunes ProcessLeadData
type ProcessOptions struct {
	// Platform triggers a re-mapping pass through the named platform
	// mapper before processing (used by retry reprocessing)
	Platform string
	// DefaultStatus overrides the NEW status
	DefaultStatus models.LeadStatus
	// AssignTo pre-assigns the lead to an agent
	AssignTo string
}

// ProcessLeadData orchestrates mapping, scoring, tagging and valuation
// into the persisted lead shape
func ProcessLeadData(data *models.UniversalLeadData, opts ProcessOptions) *models.ProcessedLead {
	if opts.Platform != "" {
		if mapper := MapperForPlatform(opts.Platform); mapper != nil && data.RawPayload != nil {
			remapped := mapper(data.RawPayload)
			data = &remapped
		}
	}

	status := models.LeadStatusNew
	if opts.DefaultStatus != "" {
		status = opts.DefaultStatus
	}

	insRaw := data.InsuranceType
	if insRaw == "" {
		insRaw = data.PlanType
	}

	now := time.Now()
	return &models.ProcessedLead{
		ID:             uuid.New().String(),
		Email:          strings.ToLower(strings.TrimSpace(data.Email)),
		FirstName:      strings.TrimSpace(data.FirstName),
		LastName:       strings.TrimSpace(data.LastName),
		Phone:          data.Phone,
		Age:            data.Age,
		ZipCode:        data.ZipCode,
		City:           data.City,
		State:          data.State,
		Source:         data.Source,
		InsuranceType:  string(MapInsuranceType(insRaw)),
		Status:         status,
		Score:          CalculateLeadScore(data),
		Tags:           GenerateLeadTags(data),
		EstimatedValue: CalculateEstimatedValue(data),
		AssignedTo:     opts.AssignTo,
		UTMSource:      data.UTMSource,
		UTMMedium:      data.UTMMedium,
		UTMCampaign:    data.UTMCampaign,
		CustomFields:   data.CustomFields,
		RawPayload:     data.RawPayload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PlatformMapper converts a platform-specific raw payload into the
// canonical lead shape. Mappers are total: missing fields stay zero,
// they never return an error.
type PlatformMapper func(models.JSONB) models.UniversalLeadData

// MapperForPlatform returns the mapper for a platform identifier, or nil
// for unknown platforms (callers fall back to the generic mapper)
func MapperForPlatform(platform string) PlatformMapper {
	switch strings.ToLower(platform) {
	case "meta":
		return MapMetaLead
	case "google":
		return MapGoogleLead
	case "tiktok":
		return MapTikTokLead
	case "landing_page":
		return MapLandingPageLead
	case "generic":
		return MapGenericLead
	default:
		return nil
	}
}

// MapMetaLead parses a Meta lead-ads payload. Field answers arrive as a
// field_data array of {name, values}; campaign attribution sits at the
// top level. Unmapped fields land in CustomFields for auditability.
func MapMetaLead(payload models.JSONB) models.UniversalLeadData {
	fields := metaFieldData(payload)

	data := models.UniversalLeadData{
		Source:     "META_ADS",
		RawPayload: payload,
	}

	data.Email = firstOf(fields, "email", "email_address", "work_email")
	data.Phone = firstOf(fields, "phone_number", "phone")
	data.ZipCode = firstOf(fields, "zip_code", "post_code", "zip")
	data.City = firstOf(fields, "city")
	data.State = firstOf(fields, "state", "province")
	data.DateOfBirth = firstOf(fields, "date_of_birth", "dob")
	data.PlanType = firstOf(fields, "insurance_type", "plan_type", "coverage_type")

	fullName := firstOf(fields, "full_name")
	if fullName != "" {
		parts := strings.SplitN(fullName, " ", 2)
		data.FirstName = parts[0]
		if len(parts) > 1 {
			data.LastName = parts[1]
		}
	}
	if first := firstOf(fields, "first_name"); first != "" {
		data.FirstName = first
	}
	if last := firstOf(fields, "last_name"); last != "" {
		data.LastName = last
	}

	if age := firstOf(fields, "age"); age != "" {
		data.Age = parseIntValue(age)
	}

	data.Campaign = getString(payload, "campaign_name", "campaign_id")
	data.UTMSource = "facebook"
	data.UTMMedium = "paid_social"
	data.UTMCampaign = getString(payload, "campaign_name")

	mapped := map[string]bool{
		"email": true, "email_address": true, "work_email": true,
		"phone_number": true, "phone": true, "zip_code": true,
		"post_code": true, "zip": true, "city": true, "state": true,
		"province": true, "date_of_birth": true, "dob": true,
		"insurance_type": true, "plan_type": true, "coverage_type": true,
		"full_name": true, "first_name": true, "last_name": true, "age": true,
	}
	data.CustomFields = leftoverFields(fields, mapped)

	return data
}

// metaFieldData flattens the field_data array into a name -> value map
func metaFieldData(payload models.JSONB) map[string]string {
	fields := make(map[string]string)

	raw, ok := payload["field_data"].([]interface{})
	if !ok {
		return fields
	}

	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}

		if values, ok := entry["values"].([]interface{}); ok && len(values) > 0 {
			if s, ok := values[0].(string); ok {
				fields[strings.ToLower(name)] = s
				continue
			}
		}
		if s, ok := entry["value"].(string); ok {
			fields[strings.ToLower(name)] = s
		}
	}

	return fields
}

// MapGoogleLead parses a Google Ads lead-form payload. Answers arrive as
// user_column_data entries keyed by column_id.
func MapGoogleLead(payload models.JSONB) models.UniversalLeadData {
	columns := googleColumnData(payload)

	data := models.UniversalLeadData{
		Source:     "GOOGLE_ADS",
		RawPayload: payload,
	}

	data.Email = firstOf(columns, "email", "email_address")
	data.FirstName = firstOf(columns, "first_name", "given_name")
	data.LastName = firstOf(columns, "last_name", "family_name")
	data.Phone = firstOf(columns, "phone_number", "phone")
	data.ZipCode = firstOf(columns, "postal_code", "zip_code")
	data.City = firstOf(columns, "city")
	data.State = firstOf(columns, "region", "state")
	data.PlanType = firstOf(columns, "insurance_type", "plan_type")

	if age := firstOf(columns, "age"); age != "" {
		data.Age = parseIntValue(age)
	}

	data.Campaign = getString(payload, "campaign_id")
	data.UTMSource = "google"
	data.UTMMedium = "cpc"
	data.UTMCampaign = getString(payload, "campaign_id")

	mapped := map[string]bool{
		"email": true, "email_address": true, "first_name": true,
		"given_name": true, "last_name": true, "family_name": true,
		"phone_number": true, "phone": true, "postal_code": true,
		"zip_code": true, "city": true, "region": true, "state": true,
		"insurance_type": true, "plan_type": true, "age": true,
	}
	data.CustomFields = leftoverFields(columns, mapped)

	return data
}

// googleColumnData flattens user_column_data into a column_id -> value map
func googleColumnData(payload models.JSONB) map[string]string {
	columns := make(map[string]string)

	raw, ok := payload["user_column_data"].([]interface{})
	if !ok {
		return columns
	}

	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := entry["column_id"].(string)
		if id == "" {
			if name, ok := entry["column_name"].(string); ok {
				id = name
			}
		}
		if id == "" {
			continue
		}

		if val, ok := entry["string_value"].(string); ok {
			columns[strings.ToLower(id)] = val
		}
	}

	return columns
}

// MapTikTokLead parses a TikTok lead-generation payload: form answers in
// a properties object, attribution at the top level
func MapTikTokLead(payload models.JSONB) models.UniversalLeadData {
	props, _ := payload["properties"].(map[string]interface{})
	if props == nil {
		props = payload
	}

	data := models.UniversalLeadData{
		Source:     "TIKTOK_ADS",
		RawPayload: payload,
	}

	data.Email = getString(props, "email", "email_address")
	data.FirstName = getString(props, "first_name", "name")
	data.LastName = getString(props, "last_name")
	data.Phone = getString(props, "phone_number", "phone")
	data.ZipCode = getString(props, "zip_code", "postal_code")
	data.City = getString(props, "city")
	data.State = getString(props, "state")
	data.Age = getInt(props, "age")
	data.PlanType = getString(props, "insurance_type", "plan_type")

	data.Campaign = getString(payload, "campaign_name", "campaign_id")
	data.UTMSource = "tiktok"
	data.UTMMedium = "paid_social"
	data.UTMCampaign = getString(payload, "campaign_name")

	return data
}

// MapLandingPageLead parses a first-party landing-page form submission:
// flat JSON with behavioral signals and the full UTM set
func MapLandingPageLead(payload models.JSONB) models.UniversalLeadData {
	data := models.UniversalLeadData{
		Source:     "LANDING_PAGE",
		RawPayload: payload,
	}

	data.Email = getString(payload, "email", "emailAddress", "email_address")
	data.FirstName = getString(payload, "firstName", "first_name", "fname")
	data.LastName = getString(payload, "lastName", "last_name", "lname")
	data.Phone = getString(payload, "phone", "phoneNumber", "phone_number")
	data.DateOfBirth = getString(payload, "dateOfBirth", "date_of_birth", "dob")
	data.Age = getInt(payload, "age")
	data.ZipCode = getString(payload, "zipCode", "zip_code", "zip")
	data.City = getString(payload, "city")
	data.State = getString(payload, "state")
	data.Country = getString(payload, "country")
	data.InsuranceType = getString(payload, "insuranceType", "insurance_type")
	data.PlanType = getString(payload, "planType", "plan_type")
	data.CurrentInsurance = getString(payload, "currentInsurance", "current_insurance")

	data.UTMSource = getString(payload, "utmSource", "utm_source")
	data.UTMMedium = getString(payload, "utmMedium", "utm_medium")
	data.UTMCampaign = getString(payload, "utmCampaign", "utm_campaign")
	data.UTMContent = getString(payload, "utmContent", "utm_content")
	data.UTMTerm = getString(payload, "utmTerm", "utm_term")
	data.Campaign = getString(payload, "campaign")

	data.LandingPageURL = getString(payload, "landingPageUrl", "landing_page_url", "pageUrl")
	data.PageViews = getInt(payload, "pageViews", "page_views")
	data.SessionDuration = getInt(payload, "sessionDuration", "session_duration")
	data.FormCompletionTime = getInt(payload, "formCompletionTime", "form_completion_time")
	data.PreviousVisits = getInt(payload, "previousVisits", "previous_visits")

	if p := getString(payload, "priority"); p != "" {
		data.Priority = models.Priority(strings.ToUpper(p))
	}

	if source := getString(payload, "source"); source != "" {
		data.Source = source
	}

	return data
}

// MapGenericLead is the catch-all mapper for unknown webhook sources.
// It reuses the landing-page fallback chains but keeps the declared
// source when present, defaulting to WEBHOOK.
func MapGenericLead(payload models.JSONB) models.UniversalLeadData {
	data := MapLandingPageLead(payload)

	if source := getString(payload, "source", "lead_source"); source != "" {
		data.Source = source
	} else {
		data.Source = "WEBHOOK"
	}

	return data
}

// Lookup helpers. Each tries keys in order and settles for the zero value.

func getString(payload map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			switch v := val.(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

func getInt(payload map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			switch v := val.(type) {
			case float64:
				return int(v)
			case int:
				return v
			case string:
				if n := parseIntValue(v); n != 0 {
					return n
				}
			}
		}
	}
	return 0
}

func parseIntValue(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func firstOf(fields map[string]string, keys ...string) string {
	for _, key := range keys {
		if val, ok := fields[key]; ok && val != "" {
			return val
		}
	}
	return ""
}

// leftoverFields collects unmapped field values for the custom-fields bag
func leftoverFields(fields map[string]string, mapped map[string]bool) models.JSONB {
	leftovers := make(models.JSONB)
	for key, val := range fields {
		if !mapped[key] {
			leftovers[key] = val
		}
	}
	if len(leftovers) == 0 {
		return nil
	}
	return leftovers
}

// DescribeValidationErrors renders a validation result into one error for
// logging and retry-record contexts
func DescribeValidationErrors(result ValidationResult) error {
	if result.IsValid {
		return nil
	}
	return fmt.Errorf("lead validation failed: %s", strings.Join(result.Errors, "; "))
}

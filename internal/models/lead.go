package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*j = result
	return nil
}

// StringSlice is a custom type for JSONB-encoded string arrays
type StringSlice []string

// Value implements the driver.Valuer interface for StringSlice
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(s))
}

// Scan implements the sql.Scanner interface for StringSlice
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal string slice value: %v", value)
	}

	var result []string
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*s = result
	return nil
}

// Priority represents the urgency level attached to a lead at intake
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// UniversalLeadData is the canonical intake shape every platform payload
// is mapped into before persistence. Email, FirstName and Source are the
// only required fields; everything else is best-effort extraction.
type UniversalLeadData struct {
	// Required
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Source    string `json:"source"`

	// Contact
	LastName    string `json:"lastName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Age         int    `json:"age,omitempty"`

	// Location
	ZipCode string `json:"zipCode,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`

	// Insurance
	InsuranceType    string `json:"insuranceType,omitempty"`
	PlanType         string `json:"planType,omitempty"`
	CurrentInsurance string `json:"currentInsurance,omitempty"`

	// Marketing attribution
	Campaign    string `json:"campaign,omitempty"`
	Medium      string `json:"medium,omitempty"`
	Content     string `json:"content,omitempty"`
	Term        string `json:"term,omitempty"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	UTMContent  string `json:"utmContent,omitempty"`
	UTMTerm     string `json:"utmTerm,omitempty"`

	// Behavioral signals
	LandingPageURL     string `json:"landingPageUrl,omitempty"`
	PageViews          int    `json:"pageViews,omitempty"`
	SessionDuration    int    `json:"sessionDuration,omitempty"`
	FormCompletionTime int    `json:"formCompletionTime,omitempty"`
	PreviousVisits     int    `json:"previousVisits,omitempty"`

	Priority     Priority `json:"priority,omitempty"`
	CustomFields JSONB    `json:"customFields,omitempty"`
	RawPayload   JSONB    `json:"rawPayload,omitempty"`
}

// ProcessedLead is the persisted record derived from UniversalLeadData
type ProcessedLead struct {
	ID             string      `json:"id" db:"id"`
	Email          string      `json:"email" db:"email"`
	FirstName      string      `json:"first_name" db:"first_name"`
	LastName       string      `json:"last_name,omitempty" db:"last_name"`
	Phone          string      `json:"phone,omitempty" db:"phone"`
	Age            int         `json:"age,omitempty" db:"age"`
	ZipCode        string      `json:"zip_code,omitempty" db:"zip_code"`
	City           string      `json:"city,omitempty" db:"city"`
	State          string      `json:"state,omitempty" db:"state"`
	Source         string      `json:"source" db:"source"`
	InsuranceType  string      `json:"insurance_type" db:"insurance_type"`
	Status         LeadStatus  `json:"status" db:"status"`
	Score          int         `json:"score" db:"score"`
	Tags           StringSlice `json:"tags" db:"tags"`
	EstimatedValue float64     `json:"estimated_value" db:"estimated_value"`
	AssignedTo     string      `json:"assigned_to,omitempty" db:"assigned_to"`
	UTMSource      string      `json:"utm_source,omitempty" db:"utm_source"`
	UTMMedium      string      `json:"utm_medium,omitempty" db:"utm_medium"`
	UTMCampaign    string      `json:"utm_campaign,omitempty" db:"utm_campaign"`
	CustomFields   JSONB       `json:"custom_fields,omitempty" db:"custom_fields"`
	RawPayload     JSONB       `json:"raw_payload,omitempty" db:"raw_payload"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// LeadEvent is a behavioral event attached to a lead, consumed by the
// scoring engine alongside the lead record itself
type LeadEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Metadata   JSONB     `json:"metadata,omitempty"`
}

// AppliedRule records a single scoring rule that contributed points
type AppliedRule struct {
	Rule   string `json:"rule"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// LeadScore is the recomputed, never-persisted result of running the
// scoring engine over a lead. MaxScore is the ceiling across all active
// rules, whether or not they applied.
type LeadScore struct {
	Score        int           `json:"score"`
	MaxScore     int           `json:"max_score"`
	Percentage   int           `json:"percentage"`
	AppliedRules []AppliedRule `json:"applied_rules"`
}

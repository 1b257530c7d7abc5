package models

// RuleAction is the closed set of scoring rule condition types. Unknown
// actions coming from configuration are tolerated at evaluation time
// (zero points, warning log) but cannot be represented here.
type RuleAction string

const (
	ActionFormSubmitted       RuleAction = "form_submitted"
	ActionPhoneProvided       RuleAction = "phone_provided"
	ActionEmailProvided       RuleAction = "email_provided"
	ActionHighValueInsurance  RuleAction = "high_value_insurance"
	ActionQuickFormCompletion RuleAction = "quick_form_completion"
	ActionMultiplePagesViewed RuleAction = "multiple_pages_viewed"
	ActionLongSessionDuration RuleAction = "long_session_duration"
	ActionPremiumLandingPage  RuleAction = "premium_landing_page"
	ActionUTMCampaignPresent  RuleAction = "utm_campaign"
	ActionHighIntentSource    RuleAction = "high_intent_source"
	ActionReturningVisitor    RuleAction = "returning_visitor"
)

// ScoringRule is a configured, named condition/point-value pair
type ScoringRule struct {
	ID           int64  `json:"id" db:"id"`
	Action       string `json:"action" db:"action"`
	Points       int    `json:"points" db:"points"`
	IsActive     bool   `json:"is_active" db:"is_active"`
	DisplayOrder int    `json:"display_order" db:"display_order"`
}

// ConditionField is the closed set of lead fields assignment rule
// conditions may reference
type ConditionField string

const (
	FieldInsuranceType   ConditionField = "insuranceType"
	FieldSource          ConditionField = "source"
	FieldScore           ConditionField = "score"
	FieldScorePercentage ConditionField = "scorePercentage"
	FieldEstimatedValue  ConditionField = "estimatedValue"
	FieldPagesViewed     ConditionField = "pagesViewed"
	FieldSessionDuration ConditionField = "sessionDuration"
	FieldUTMSource       ConditionField = "utmSource"
	FieldUTMCampaign     ConditionField = "utmCampaign"
	FieldCity            ConditionField = "city"
	FieldState           ConditionField = "state"
)

// ConditionOperator is the closed set of comparison operators
type ConditionOperator string

const (
	OpEquals       ConditionOperator = "equals"
	OpNotEquals    ConditionOperator = "not_equals"
	OpContains     ConditionOperator = "contains"
	OpGreaterThan  ConditionOperator = "greater_than"
	OpLessThan     ConditionOperator = "less_than"
	OpGreaterEqual ConditionOperator = "greater_equal"
	OpLessEqual    ConditionOperator = "less_equal"
	OpIn           ConditionOperator = "in"
	OpNotIn        ConditionOperator = "not_in"
)

// RuleCondition is one {field, operator, value} triple; a rule's
// conditions are combined with implicit AND
type RuleCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// AssignmentRule routes leads to a target agent when its conditions hold
type AssignmentRule struct {
	ID         int64           `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	Conditions []RuleCondition `json:"conditions" db:"conditions"`
	AssignTo   string          `json:"assign_to" db:"assign_to"`
	Priority   int             `json:"priority" db:"priority"`
	IsActive   bool            `json:"is_active" db:"is_active"`
}

// AgentAvailability is the runtime view of an agent used for assignment
type AgentAvailability struct {
	AgentID          string      `json:"agent_id" db:"agent_id"`
	AgentName        string      `json:"agent_name" db:"agent_name"`
	CurrentLeadCount int         `json:"current_lead_count" db:"current_lead_count"`
	MaxLeadCapacity  int         `json:"max_lead_capacity" db:"max_lead_capacity"`
	Specializations  StringSlice `json:"specializations" db:"specializations"`
	IsOnline         bool        `json:"is_online" db:"is_online"`
	IsActive         bool        `json:"is_active" db:"is_active"`
}

// CanAcceptLead reports whether the agent is eligible for a new assignment
func (a *AgentAvailability) CanAcceptLead() bool {
	return a.IsActive && a.IsOnline && a.CurrentLeadCount < a.MaxLeadCapacity
}

// CrmSettings carries notification configuration, read fresh per operation
type CrmSettings struct {
	InstantAlertsEnabled bool   `json:"instant_alerts_enabled"`
	DailyDigestEnabled   bool   `json:"daily_digest_enabled"`
	EmailEnabled         bool   `json:"email_enabled"`
	EmailAddress         string `json:"email_address"`
	SMSEnabled           bool   `json:"sms_enabled"`
	SMSNumber            string `json:"sms_number"`
	WebhookEnabled       bool   `json:"webhook_enabled"`
	WebhookURL           string `json:"webhook_url"`
}

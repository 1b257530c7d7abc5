package models

// LeadStatus represents the current state of a lead in the CRM pipeline
type LeadStatus string

const (
	// LeadStatusNew indicates the lead was just created from an inbound webhook
	LeadStatusNew LeadStatus = "NEW"

	// LeadStatusContacted indicates an agent has reached out to the lead
	LeadStatusContacted LeadStatus = "CONTACTED"

	// LeadStatusQualified indicates the lead passed agent qualification
	LeadStatusQualified LeadStatus = "QUALIFIED"

	// LeadStatusConverted indicates the lead purchased a policy
	LeadStatusConverted LeadStatus = "CONVERTED"

	// LeadStatusLost indicates the lead was lost to churn or a competitor
	LeadStatusLost LeadStatus = "LOST"
)

// IsValid checks if the status is a valid LeadStatus value
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified,
		LeadStatusConverted, LeadStatusLost:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a terminal state
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusConverted || s == LeadStatusLost
}

// InsuranceType is the canonical product classification for a lead
type InsuranceType string

const (
	InsuranceTypeMedicareAdvantage InsuranceType = "MEDICARE_ADVANTAGE"
	InsuranceTypeMedicareSupp      InsuranceType = "MEDICARE_SUPPLEMENT"
	InsuranceTypeLife              InsuranceType = "LIFE_INSURANCE"
	InsuranceTypeFinalExpense      InsuranceType = "FINAL_EXPENSE"
	InsuranceTypeHealth            InsuranceType = "HEALTH_INSURANCE"
	InsuranceTypeAuto              InsuranceType = "AUTO_INSURANCE"
	InsuranceTypeHome              InsuranceType = "HOME_INSURANCE"
	InsuranceTypeOther             InsuranceType = "OTHER"
)

// RetryStatus represents the state of a webhook retry record
type RetryStatus string

const (
	// RetryStatusPending indicates the record is armed and waiting for its next attempt
	RetryStatusPending RetryStatus = "PENDING"

	// RetryStatusRetrying indicates a poller has claimed the record and is reprocessing it
	RetryStatusRetrying RetryStatus = "RETRYING"

	// RetryStatusSuccess indicates reprocessing eventually succeeded
	RetryStatusSuccess RetryStatus = "SUCCESS"

	// RetryStatusFailed indicates the record failed without being re-armed
	RetryStatusFailed RetryStatus = "FAILED"

	// RetryStatusDeadLetter indicates the retry budget was exhausted
	RetryStatusDeadLetter RetryStatus = "DEAD_LETTER"
)

// IsValid checks if the status is a valid RetryStatus value
func (s RetryStatus) IsValid() bool {
	switch s {
	case RetryStatusPending, RetryStatusRetrying, RetryStatusSuccess,
		RetryStatusFailed, RetryStatusDeadLetter:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a terminal state
func (s RetryStatus) IsTerminal() bool {
	return s == RetryStatusSuccess || s == RetryStatusFailed || s == RetryStatusDeadLetter
}

// DeadLetterResolution tracks manual handling of a dead-letter entry
type DeadLetterResolution string

const (
	// DeadLetterRequiresReview is the initial state of every dead-letter entry
	DeadLetterRequiresReview DeadLetterResolution = "REQUIRES_MANUAL_REVIEW"

	// DeadLetterManuallyResolved indicates a manual retry succeeded
	DeadLetterManuallyResolved DeadLetterResolution = "MANUALLY_RESOLVED"
)

// NotificationEvent identifies a lead lifecycle event that can trigger notifications
type NotificationEvent string

const (
	NotificationLeadCreated   NotificationEvent = "lead_created"
	NotificationLeadAssigned  NotificationEvent = "lead_assigned"
	NotificationLeadConverted NotificationEvent = "lead_converted"
	NotificationLeadLost      NotificationEvent = "lead_lost"
	NotificationHighScoreLead NotificationEvent = "high_score_lead"
	NotificationDailyDigest   NotificationEvent = "daily_digest"
)

// IsDigest returns true for digest-type events, which bypass the instant
// alerts gate and are controlled by the digest setting instead
func (e NotificationEvent) IsDigest() bool {
	return e == NotificationDailyDigest
}

package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
)

// highValueInsuranceTypes drive the high_value_insurance rule
var highValueInsuranceTypes = map[string]bool{
	string(models.InsuranceTypeMedicareAdvantage): true,
	string(models.InsuranceTypeLife):              true,
	string(models.InsuranceTypeFinalExpense):      true,
}

// premiumLandingPages drive the premium_landing_page rule
var premiumLandingPages = []string{
	"/medicare-compare",
	"/final-expense-quote",
	"/life-quote",
}

// highIntentSources drive the high_intent_source rule
var highIntentSources = map[string]bool{
	"LANDING_PAGE": true,
	"REFERRAL":     true,
	"GOOGLE_ADS":   true,
}

// ScoringEngine applies an ordered, configurable set of point-awarding
// rules to a lead. Engines are cheap and constructed fresh from the
// current rule set on every invocation; no caching.
type ScoringEngine struct {
	rules []models.ScoringRule
}

// NewScoringEngine builds an engine from the configured rules, keeping
// only active ones in display order
func NewScoringEngine(rules []models.ScoringRule) *ScoringEngine {
	active := make([]models.ScoringRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].DisplayOrder < active[j].DisplayOrder
	})

	return &ScoringEngine{rules: active}
}

// CalculateScore evaluates every active rule against the lead and its
// behavioral events. MaxScore is the sum of all active rule points
// regardless of whether they applied; an unknown rule action contributes
// zero points and a warning, never an error.
func (e *ScoringEngine) CalculateScore(ctx context.Context, lead *models.ProcessedLead, events []models.LeadEvent) models.LeadScore {
	result := models.LeadScore{
		AppliedRules: []models.AppliedRule{},
	}

	for _, rule := range e.rules {
		result.MaxScore += rule.Points

		applies, reason, known := e.evaluate(lead, events, rule.Action)
		if !known {
			logger.Warn(ctx, "Unknown scoring rule action, contributing zero points", "action", rule.Action)
			continue
		}

		if applies {
			result.Score += rule.Points
			result.AppliedRules = append(result.AppliedRules, models.AppliedRule{
				Rule:   rule.Action,
				Points: rule.Points,
				Reason: reason,
			})
		}
	}

	if result.MaxScore > 0 {
		result.Percentage = int(math.Round(float64(result.Score) / float64(result.MaxScore) * 100))
	}

	return result
}

// evaluate runs one rule action against the lead. Returns whether the
// condition held, a human-readable reason, and whether the action was
// recognized at all.
func (e *ScoringEngine) evaluate(lead *models.ProcessedLead, events []models.LeadEvent, action string) (bool, string, bool) {
	switch models.RuleAction(action) {
	case models.ActionFormSubmitted:
		return true, "lead submitted a form", true

	case models.ActionPhoneProvided:
		return lead.Phone != "", "phone number provided", true

	case models.ActionEmailProvided:
		return lead.Email != "", "email address provided", true

	case models.ActionHighValueInsurance:
		return highValueInsuranceTypes[lead.InsuranceType],
			fmt.Sprintf("high-value insurance type %s", lead.InsuranceType), true

	case models.ActionQuickFormCompletion:
		t := behaviorInt(lead, "formCompletionTime")
		return t > 0 && t <= 60, "form completed within 60s", true

	case models.ActionMultiplePagesViewed:
		return behaviorInt(lead, "pageViews") >= 3, "viewed 3+ pages", true

	case models.ActionLongSessionDuration:
		return behaviorInt(lead, "sessionDuration") >= 300, "session lasted 300s+", true

	case models.ActionPremiumLandingPage:
		url := behaviorString(lead, "landingPageUrl")
		for _, page := range premiumLandingPages {
			if url != "" && strings.Contains(url, page) {
				return true, "arrived via premium landing page", true
			}
		}
		return false, "", true

	case models.ActionUTMCampaignPresent:
		return lead.UTMCampaign != "", "campaign attribution present", true

	case models.ActionHighIntentSource:
		return highIntentSources[strings.ToUpper(lead.Source)],
			fmt.Sprintf("high-intent source %s", lead.Source), true

	case models.ActionReturningVisitor:
		if behaviorInt(lead, "previousVisits") > 0 {
			return true, "returning visitor", true
		}
		for _, event := range events {
			if event.Type == "return_visit" {
				return true, "returning visitor", true
			}
		}
		return false, "", true

	default:
		return false, "", false
	}
}

// behaviorInt reads a numeric behavioral signal preserved from intake in
// the lead's raw payload
func behaviorInt(lead *models.ProcessedLead, key string) int {
	if lead.RawPayload == nil {
		return 0
	}
	return getInt(lead.RawPayload, key, camelToSnake(key))
}

func behaviorString(lead *models.ProcessedLead, key string) string {
	if lead.RawPayload == nil {
		return ""
	}
	return getString(lead.RawPayload, key, camelToSnake(key))
}

func camelToSnake(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PriorityForPercentage maps a score percentage to a priority band.
// This is the single mapping used wherever priority is surfaced.
func PriorityForPercentage(percentage int) models.Priority {
	switch {
	case percentage >= 80:
		return models.PriorityUrgent
	case percentage >= 60:
		return models.PriorityHigh
	case percentage >= 40:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
)

// AssignmentResult reports the outcome of routing a lead to an agent.
// Zero eligible agents is a defined failure, never an error.
type AssignmentResult struct {
	Success    bool
	AssignedTo string
	Rule       string
	Reason     string
	Err        error
}

// AssignmentEngine evaluates prioritized conditional rules against a lead
// to pick a target agent, falling back to round-robin load balancing.
// Constructed fresh from the current rules and agent roster per call.
type AssignmentEngine struct {
	rules  []models.AssignmentRule
	agents []models.AgentAvailability
}

// NewAssignmentEngine builds an engine from active rules (highest
// priority first, configured order preserved for ties) and active agents
func NewAssignmentEngine(rules []models.AssignmentRule, agents []models.AgentAvailability) *AssignmentEngine {
	active := make([]models.AssignmentRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})

	return &AssignmentEngine{rules: active, agents: agents}
}

// AssignLead picks an agent for the lead. Rules are evaluated in priority
// order; the first rule whose conditions all hold and whose target agent
// can accept the lead wins. A matching rule with an unavailable agent
// does not abort the run; evaluation continues to the next rule and
// finally to round-robin.
func (e *AssignmentEngine) AssignLead(ctx context.Context, lead *models.ProcessedLead, score *models.LeadScore) AssignmentResult {
	for _, rule := range e.rules {
		if !e.ruleMatches(ctx, rule, lead, score) {
			continue
		}

		agent := e.findAgent(rule.AssignTo)
		if agent == nil {
			logger.Warn(ctx, "Assignment rule matched but target agent not found",
				"rule", rule.Name, "assign_to", rule.AssignTo)
			continue
		}
		if !agent.CanAcceptLead() {
			logger.Info(ctx, "Assignment rule matched but target agent unavailable",
				"rule", rule.Name, "agent", agent.AgentName,
				"online", agent.IsOnline, "lead_count", agent.CurrentLeadCount,
				"capacity", agent.MaxLeadCapacity)
			continue
		}

		return AssignmentResult{
			Success:    true,
			AssignedTo: agent.AgentName,
			Rule:       rule.Name,
			Reason:     fmt.Sprintf("matched rule %q", rule.Name),
		}
	}

	return e.roundRobin()
}

// roundRobin picks the eligible agent with the lowest current lead count,
// ties broken by roster order
func (e *AssignmentEngine) roundRobin() AssignmentResult {
	var best *models.AgentAvailability
	for i := range e.agents {
		agent := &e.agents[i]
		if !agent.CanAcceptLead() {
			continue
		}
		if best == nil || agent.CurrentLeadCount < best.CurrentLeadCount {
			best = agent
		}
	}

	if best == nil {
		return AssignmentResult{
			Success: false,
			Reason:  "no eligible agents available",
		}
	}

	return AssignmentResult{
		Success:    true,
		AssignedTo: best.AgentName,
		Reason:     "round-robin",
	}
}

// ruleMatches evaluates all of a rule's conditions with implicit AND.
// A rule with zero conditions never matches.
func (e *AssignmentEngine) ruleMatches(ctx context.Context, rule models.AssignmentRule, lead *models.ProcessedLead, score *models.LeadScore) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	for _, cond := range rule.Conditions {
		value, known := fieldValue(lead, score, models.ConditionField(cond.Field))
		if !known {
			logger.Warn(ctx, "Unknown assignment condition field", "rule", rule.Name, "field", cond.Field)
			return false
		}

		holds, known := applyOperator(value, models.ConditionOperator(cond.Operator), cond.Value)
		if !known {
			logger.Warn(ctx, "Unknown assignment condition operator", "rule", rule.Name, "operator", cond.Operator)
			return false
		}
		if !holds {
			return false
		}
	}

	return true
}

func (e *AssignmentEngine) findAgent(nameOrID string) *models.AgentAvailability {
	for i := range e.agents {
		if e.agents[i].AgentID == nameOrID || e.agents[i].AgentName == nameOrID {
			return &e.agents[i]
		}
	}
	return nil
}

// fieldValue resolves a condition field against the lead and its
// operational score. The field set is closed; unknown fields are
// reported back so the caller can warn and skip the rule.
func fieldValue(lead *models.ProcessedLead, score *models.LeadScore, field models.ConditionField) (interface{}, bool) {
	switch field {
	case models.FieldInsuranceType:
		return lead.InsuranceType, true
	case models.FieldSource:
		return lead.Source, true
	case models.FieldScore:
		if score != nil {
			return score.Score, true
		}
		return lead.Score, true
	case models.FieldScorePercentage:
		if score != nil {
			return score.Percentage, true
		}
		return 0, true
	case models.FieldEstimatedValue:
		return lead.EstimatedValue, true
	case models.FieldPagesViewed:
		return behaviorInt(lead, "pageViews"), true
	case models.FieldSessionDuration:
		return behaviorInt(lead, "sessionDuration"), true
	case models.FieldUTMSource:
		return lead.UTMSource, true
	case models.FieldUTMCampaign:
		return lead.UTMCampaign, true
	case models.FieldCity:
		return lead.City, true
	case models.FieldState:
		return lead.State, true
	default:
		return nil, false
	}
}

// applyOperator compares a field value against the configured value.
// The operator set is closed; the second return reports recognition.
func applyOperator(fieldVal interface{}, op models.ConditionOperator, condVal interface{}) (bool, bool) {
	switch op {
	case models.OpEquals:
		return looseEquals(fieldVal, condVal), true

	case models.OpNotEquals:
		return !looseEquals(fieldVal, condVal), true

	case models.OpContains:
		fieldStr, okA := fieldVal.(string)
		condStr, okB := condVal.(string)
		if !okA || !okB {
			return false, true
		}
		return strings.Contains(strings.ToLower(fieldStr), strings.ToLower(condStr)), true

	case models.OpGreaterThan, models.OpLessThan, models.OpGreaterEqual, models.OpLessEqual:
		a, okA := toFloat(fieldVal)
		b, okB := toFloat(condVal)
		if !okA || !okB {
			return false, true
		}
		switch op {
		case models.OpGreaterThan:
			return a > b, true
		case models.OpLessThan:
			return a < b, true
		case models.OpGreaterEqual:
			return a >= b, true
		default:
			return a <= b, true
		}

	case models.OpIn, models.OpNotIn:
		list, ok := condVal.([]interface{})
		if !ok {
			// tolerate []string from typed configuration
			if strs, ok := condVal.([]string); ok {
				list = make([]interface{}, len(strs))
				for i, s := range strs {
					list[i] = s
				}
			} else {
				return false, true
			}
		}
		found := false
		for _, item := range list {
			if looseEquals(fieldVal, item) {
				found = true
				break
			}
		}
		if op == models.OpIn {
			return found, true
		}
		return !found, true

	default:
		return false, false
	}
}

// looseEquals compares values across string/number representations
func looseEquals(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}

	return strings.EqualFold(stringify(a), stringify(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Confidence boosts applied on top of the configured default.
const (
	doBoost       = 0.2
	followUpBoost = 0.15
)

// resolveAssignee picks the assignee display string:
//
//  1. the first LLM candidate containing an "@";
//  2. for follow-ups, the first To (else Cc) recipient who is not the
//     sender;
//  3. the first non-empty free-text candidate;
//  4. the unassigned sentinel.
func resolveAssignee(payload *ActionPayload, email *NormalizedEmail) string {
	for _, cand := range payload.AssigneeCandidates {
		if strings.Contains(cand, "@") {
			return cand
		}
	}

	if ActionType(payload.Type) == ActionFollowUp {
		for _, list := range [][]Address{email.To, email.Cc} {
			for _, a := range list {
				if a.Email != "" && a.Email != email.From.Email {
					return a.Display()
				}
			}
		}
	}

	for _, cand := range payload.AssigneeCandidates {
		if strings.TrimSpace(cand) != "" {
			return cand
		}
	}

	return AssigneeUnset
}

// NormalizeAction assembles the persisted action record from a validated
// extraction result and an optional deadline resolution. Returns nil when
// the raw result does not carry an action.
func NormalizeAction(raw *RawAction, email *NormalizedEmail, res *Resolution, defaultConfidence float64) *ResolvedAction {
	if raw == nil || !raw.IsAction || raw.Action == nil {
		return nil
	}
	payload := raw.Action

	assignee := resolveAssignee(payload, email)

	due := ""
	if res != nil {
		due = res.UTC.Format(time.RFC3339)
	}

	confidence := defaultConfidence
	switch {
	case ActionType(payload.Type) == ActionDo && due != "" && strings.Contains(assignee, "@"):
		confidence += doBoost
	case ActionType(payload.Type) == ActionFollowUp && due != "":
		confidence += followUpBoost
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	notes := ""
	if payload.DueRaw != "" {
		notes = fmt.Sprintf("원본 기한: %s", payload.DueRaw)
		if res != nil {
			notes += fmt.Sprintf(" (KST %s)", res.Local.Format("2006-01-02 15:04"))
		}
	}

	actionType := ActionType(payload.Type)
	if actionType == "" {
		actionType = ActionDo
	}
	priority := payload.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	return &ResolvedAction{
		Title:      payload.Title,
		Assignee:   assignee,
		Due:        due,
		Priority:   priority,
		Tags:       payload.Tags,
		Type:       actionType,
		Confidence: confidence,
		Notes:      notes,
	}
}

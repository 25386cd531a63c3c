// Package pipeline implements the per-recipient email action-extraction
// pipeline: normalization, deadline hint extraction, mention segmentation,
// policy classification, LLM-assisted extraction with validation, deadline
// resolution, and assembly of the final action record.
//
// Data flows strictly forward through the stages. Each stage is a function
// of the normalized email, the recipient context, and upstream output; no
// stage mutates a prior stage's output in place.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawEmail is the provider-shaped input record, decoded once at the input
// boundary. Missing fields decode to zero values; type mismatches surface as
// a decode error the caller may downgrade to a partial record.
type RawEmail struct {
	RecordID    string   `json:"recordId"`
	EmailID     string   `json:"email_id"`
	Subject     string   `json:"subject"`
	FromName    string   `json:"from_name"`
	FromAddress string   `json:"from_address"`
	ToNames     []string `json:"to_names"`
	ToAddresses []string `json:"to_addresses"`
	CcNames     []string `json:"cc_names"`
	CcAddresses []string `json:"cc_addresses"`
	Date        string   `json:"date"`
	EmailBody   string   `json:"email_body"`
	HTMLBody    string   `json:"html_body"`
	ThreadID    string   `json:"thread_id"`
	Priority    string   `json:"priority"`
	Threads     struct {
		Keywords []string `json:"keywords"`
	} `json:"threads"`
}

// Validate checks the fields required for processing. Records failing this
// check are skipped upstream of the pipeline.
func (r *RawEmail) Validate() error {
	var missing []string
	if r.Subject == "" {
		missing = append(missing, "subject")
	}
	if r.EmailBody == "" {
		missing = append(missing, "email_body")
	}
	if r.FromAddress == "" {
		missing = append(missing, "from_address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Address is a name/address pair from a recipient list. At least one of the
// two fields is non-empty by construction.
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Display renders the address as "Name <email>", falling back to whichever
// field is present.
func (a Address) Display() string {
	switch {
	case a.Name != "" && a.Email != "":
		return fmt.Sprintf("%s <%s>", a.Name, a.Email)
	case a.Email != "":
		return a.Email
	default:
		return a.Name
	}
}

// NormalizedEmail is the canonical email record produced by the Normalizer.
// It is created once per raw record and immutable thereafter.
type NormalizedEmail struct {
	RecordID       string    `json:"recordId"`
	EmailID        string    `json:"emailId"`
	Subject        string    `json:"subject"`
	From           Address   `json:"from"`
	To             []Address `json:"to"`
	Cc             []Address `json:"cc"`
	ReceivedAt     string    `json:"receivedAt"`
	Body           string    `json:"body"`
	HTMLBody       string    `json:"html_body"`
	ConversationID string    `json:"conversationId"`
	PriorityHint   string    `json:"priority_hint"`
	Keywords       []string  `json:"keywords"`
}

// RecipientContext identifies the recipient the pipeline is analyzing the
// email for. Supplied externally per run, never derived from the email.
type RecipientContext struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Team  string `json:"team"`
}

// PolicyDecision is one of the closed set of policy categories.
type PolicyDecision string

const (
	// DecisionA marks a direct request to a recipient on the To line.
	DecisionA PolicyDecision = "A"
	// DecisionB marks CC-only inclusion with no explicit callout.
	DecisionB PolicyDecision = "B"
	// DecisionC marks a request the recipient sent themselves.
	DecisionC PolicyDecision = "C"
	// DecisionD marks a team-directed request with the recipient on To.
	DecisionD PolicyDecision = "D"
	// DecisionNone marks everything else.
	DecisionNone PolicyDecision = "none"
)

// PolicySignals is the deterministic classification of an email/recipient
// pair. Stateless, recomputed each run.
type PolicySignals struct {
	Decision        PolicyDecision `json:"policy_decision"`
	SelfSent        bool           `json:"self_sent"`
	ToContainsSelf  bool           `json:"to_contains_self"`
	CcContainsSelf  bool           `json:"cc_contains_self"`
	Mentions        []string       `json:"mentions"`
	RequestDetected bool           `json:"request_detected"`
}

// Segment is a span of the normalized body addressed to the recipient.
type Segment struct {
	Start int
	End   int
	Text  string
}

// ActionType is the closed set of extracted action types.
type ActionType string

const (
	ActionDo       ActionType = "DO"
	ActionFollowUp ActionType = "FOLLOW_UP"
	ActionNone     ActionType = "NONE"
)

// Priority levels for actions.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// AssigneeUnset is the sentinel used when no assignee can be resolved.
const AssigneeUnset = "미지정"

// ActionPayload is the action body inside an LLM extraction result.
// Fields arrive untrusted and pass through validation before use.
type ActionPayload struct {
	Type               string   `json:"type"`
	Title              string   `json:"title"`
	AssigneeCandidates []string `json:"assignee_candidates"`
	DueRaw             string   `json:"due_raw"`
	Priority           string   `json:"priority"`
	Tags               []string `json:"tags"`
	Rationale          string   `json:"rationale"`
}

// RawAction is the full LLM extraction result before validation.
type RawAction struct {
	IsAction       bool           `json:"is_action"`
	PolicyDecision string         `json:"policy_decision"`
	Action         *ActionPayload `json:"action"`
}

// decodeRawAction parses an extraction result from JSON. A null due_raw
// decodes to the empty string.
func decodeRawAction(data []byte) (*RawAction, error) {
	var raw RawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid json in extraction result: %w", err)
	}
	return &raw, nil
}

// ResolvedAction is the persisted action record assembled by the final stage.
type ResolvedAction struct {
	Title      string     `json:"title"`
	Assignee   string     `json:"assignee"`
	Due        string     `json:"due,omitempty"`
	Priority   string     `json:"priority"`
	Tags       []string   `json:"tags"`
	Type       ActionType `json:"type"`
	Confidence float64    `json:"confidence"`
	Notes      string     `json:"notes"`
}

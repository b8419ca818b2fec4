package bill

import "time"

// Snapshot is one legislative item as observed at one point in time.
// Actions preserve the order the source published them in; that order is
// chronological within a bill but not comparable across bills.
type Snapshot struct {
	Identifier string   `json:"identifier"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	SourceURL  string   `json:"source_url"`
	FullText   string   `json:"full_text,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
	Actions    []Action `json:"actions"`
}

// Action is one row of a bill's published action history.
type Action struct {
	Date   string `json:"date"`
	Branch string `json:"branch"`
	Text   string `json:"text"`
}

// Record is the persisted form of a bill. LastCheckedAt advances on every
// observation; LastUpdatedAt only when title, url, or status actually changed.
type Record struct {
	ID            int64     `db:"id"`
	Identifier    string    `db:"identifier"`
	Session       string    `db:"session"`
	Title         string    `db:"title"`
	URL           string    `db:"url"`
	Status        string    `db:"status"`
	LastCheckedAt time.Time `db:"last_checked_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

// SeenState tracks the last observed content hash for one action fingerprint.
type SeenState struct {
	ItemID      string    `db:"item_id"`
	ContentHash string    `db:"content_hash"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Directive is the single recommended posture for the audience.
type Directive string

const (
	DirectiveMonitor Directive = "monitor"
	DirectivePrepare Directive = "prepare"
	DirectiveAct     Directive = "act"
)

func (d Directive) Valid() bool {
	switch d {
	case DirectiveMonitor, DirectivePrepare, DirectiveAct:
		return true
	}
	return false
}

// Role is a municipal audience role a brief can be addressed to.
type Role string

const (
	RoleMayor              Role = "mayor"
	RoleCouncil            Role = "city-council"
	RoleManager            Role = "city-manager"
	RoleClerk              Role = "city-clerk"
	RoleFinanceDirector    Role = "finance-director"
	RoleAttorney           Role = "city-attorney"
	RolePublicWorks        Role = "public-works-director"
	RolePlanningDirector   Role = "planning-director"
	RoleHRDirector         Role = "hr-director"
	RoleProcurementOfficer Role = "procurement-officer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMayor, RoleCouncil, RoleManager, RoleClerk, RoleFinanceDirector,
		RoleAttorney, RolePublicWorks, RolePlanningDirector, RoleHRDirector,
		RoleProcurementOfficer:
		return true
	}
	return false
}

// ActionType tags the kind of municipal obligation or opportunity a bill creates.
type ActionType string

const (
	ActionBudgeting      ActionType = "budgeting"
	ActionTaxation       ActionType = "taxation"
	ActionElections      ActionType = "elections"
	ActionProcurement    ActionType = "procurement"
	ActionLandUse        ActionType = "land-use"
	ActionPublicSafety   ActionType = "public-safety"
	ActionPersonnel      ActionType = "personnel"
	ActionInfrastructure ActionType = "infrastructure"
	ActionCompliance     ActionType = "reporting-compliance"
	ActionGovernance     ActionType = "governance"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionBudgeting, ActionTaxation, ActionElections, ActionProcurement,
		ActionLandUse, ActionPublicSafety, ActionPersonnel, ActionInfrastructure,
		ActionCompliance, ActionGovernance:
		return true
	}
	return false
}

// Analysis is the structured judgment returned by the analysis engine.
// Every enumerated field must be drawn from its closed vocabulary.
type Analysis struct {
	Summary              string       `json:"summary"`
	WhyItMatters         string       `json:"why_it_matters"`
	WhoShouldCare        []Role       `json:"who_should_care"`
	WhatToDo             Directive    `json:"what_to_do"`
	RecommendedNextSteps []string     `json:"recommended_next_steps"`
	Urgency              Urgency      `json:"urgency"`
	ActionTypes          []ActionType `json:"action_types"`
	Confidence           Confidence   `json:"confidence"`
	ModelNotes           string       `json:"model_notes"`
	Citations            []string     `json:"citations"`
}

// Brief is immutable once created.
type Brief struct {
	BriefID        string    `json:"brief_id"`
	BillIdentifier string    `json:"bill_identifier"`
	BillTitle      string    `json:"bill_title"`
	ItemID         string    `json:"item_id,omitempty"`
	SourceHash     string    `json:"source_hash"`
	CreatedAt      time.Time `json:"created_at"`
	Analysis       Analysis  `json:"analysis"`
}

// RelevanceJudgment is the narrow yes/no contract used by the semantic gate.
type RelevanceJudgment struct {
	Relevant   bool       `json:"relevant"`
	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason"`
}

// RunError records one candidate's failure without aborting the run.
type RunError struct {
	Identifier string `json:"identifier"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// RunStats aggregates counters over one pipeline pass.
type RunStats struct {
	Checked        int `json:"checked"`
	Found          int `json:"found"`
	KeywordPassed  int `json:"passed_keyword_filter"`
	SemanticPassed int `json:"passed_semantic_filter"`
	Updated        int `json:"updated"`
	BriefsCreated  int `json:"briefs_created"`
	Errors         int `json:"errors"`
}

// RunRecord is persisted once per pipeline pass, completed even when
// individual candidates failed. Success means zero errors observed, not
// "run executed".
type RunRecord struct {
	ID          int64      `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Status      string     `json:"status"`
	Stats       RunStats   `json:"stats"`
	Errors      []RunError `json:"errors"`
}

package moderation

import (
	"fmt"
	"time"
)

// Comment is a top-level comment fetched for a video. It is immutable once
// fetched and unique by ID within one run.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
	LikeCount   int64     `json:"like_count"`
}

// RiskLevel is a coarse bucket derived from classification confidence.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SpamType is the category assigned by the classifier.
type SpamType string

const (
	SpamGambling    SpamType = "gambling"
	SpamScam        SpamType = "scam"
	SpamPromotional SpamType = "promotional"
	SpamOffensive   SpamType = "offensive"
	SpamOther       SpamType = "other"
	SpamNone        SpamType = "none"
)

// ParseSpamType reports whether s names a known category.
func ParseSpamType(s string) (SpamType, bool) {
	switch t := SpamType(s); t {
	case SpamGambling, SpamScam, SpamPromotional, SpamOffensive, SpamOther, SpamNone:
		return t, true
	}
	return "", false
}

// Action is the policy verdict for a comment.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionDelete Action = "delete"
)

// Source records which path produced a classification.
type Source string

const (
	SourceAI         Source = "ai"
	SourceHeuristic  Source = "heuristic"
	SourceUnresolved Source = "unresolved"
)

// Classification is the judgment for one comment. RiskLevel and
// RecommendedAction are filled in by the decision policy.
type Classification struct {
	IsSpam            bool      `json:"is_spam"`
	Confidence        float64   `json:"confidence"`
	RiskLevel         RiskLevel `json:"risk_level"`
	SpamType          SpamType  `json:"spam_type"`
	RecommendedAction Action    `json:"recommended_action"`
	Reason            string    `json:"reason,omitempty"`
	Patterns          []string  `json:"detected_patterns,omitempty"`
	Source            Source    `json:"source"`
	// Error carries the diagnostic for an unresolved classification.
	Error string `json:"error,omitempty"`
}

// Unresolved reports whether the classifier gave up on this comment.
func (c Classification) Unresolved() bool {
	return c.Source == SourceUnresolved
}

// Unclassifiable returns the classification used when the AI service could
// not be reached after retries.
func Unclassifiable(err error) Classification {
	c := Classification{
		IsSpam:     false,
		Confidence: 0,
		SpamType:   SpamNone,
		Source:     SourceUnresolved,
	}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

// Priority ranks spam for review. Higher is more urgent.
func (c Classification) Priority() int {
	if !c.IsSpam {
		return 0
	}
	p := int(c.Confidence * 100)
	switch c.RiskLevel {
	case RiskHigh:
		p += 30
	case RiskMedium:
		p += 10
	}
	switch c.SpamType {
	case SpamGambling, SpamScam:
		p += 40
	case SpamPromotional:
		p += 20
	case SpamOffensive, SpamOther:
		p += 10
	}
	return p
}

// DeletionState is the outcome of a moderation attempt.
type DeletionState string

const (
	StateNotAttempted DeletionState = "not_attempted"
	StateDeleted      DeletionState = "deleted"
	StateFailed       DeletionState = "failed"
)

// Failure reasons recorded with StateFailed.
const (
	ReasonAuthLost          = "auth_lost"
	ReasonNotFound          = "not_found"
	ReasonForbidden         = "forbidden"
	ReasonProcessingFailure = "processing_failure"
	ReasonQuotaExceeded     = "quota_exceeded"
	ReasonDeadline          = "deadline_exceeded"
	ReasonUpstream          = "upstream_error"
)

// DeletionStatus is the per-comment result of the executor.
type DeletionStatus struct {
	State  DeletionState `json:"state"`
	Reason string        `json:"reason,omitempty"`
}

// Deleted, NotAttempted and Failed build statuses.
func Deleted() DeletionStatus      { return DeletionStatus{State: StateDeleted} }
func NotAttempted() DeletionStatus { return DeletionStatus{State: StateNotAttempted} }
func Failed(reason string) DeletionStatus {
	return DeletionStatus{State: StateFailed, Reason: reason}
}

func (s DeletionStatus) String() string {
	if s.State == StateFailed {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return string(s.State)
}

// DeletionOutcome pairs a comment id with its status.
type DeletionOutcome struct {
	CommentID string         `json:"comment_id"`
	Status    DeletionStatus `json:"status"`
	// Detail is the upstream error text for failures.
	Detail string `json:"detail,omitempty"`
}

// ProcessingResult joins a comment with its classification and, in enforce
// mode for flagged comments, its deletion status.
type ProcessingResult struct {
	Comment
	Classification Classification  `json:"analysis"`
	DeletionStatus *DeletionStatus `json:"deletion_status,omitempty"`
}

// Summary aggregates the results of one run.
type Summary struct {
	VideoID            string            `json:"video_id"`
	DryRun             bool              `json:"dry_run"`
	TotalComments      int               `json:"total_comments"`
	AnalyzedComments   int               `json:"analyzed_comments"`
	SpamDetected       int               `json:"spam_detected"`
	HighConfidenceSpam int               `json:"high_confidence_spam"`
	Unclassifiable     int               `json:"unclassifiable"`
	CleanComments      int               `json:"clean_comments"`
	DeletedCount       int               `json:"deleted_count"`
	FailedDeletions    int               `json:"failed_deletions"`
	NotAttempted       int               `json:"not_attempted"`
	SpamRatePercent    float64           `json:"spam_rate_percent"`
	DeletionRatePct    float64           `json:"deletion_rate_percent"`
	SpamCategories     map[SpamType]int  `json:"spam_categories"`
	RiskLevels         map[RiskLevel]int `json:"risk_levels"`
	ErrorsCount        int               `json:"errors_count"`
	ProcessingTime     time.Duration     `json:"processing_time"`
}

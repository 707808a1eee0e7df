package compliance

import (
	"time"

	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/policy"
)

// Facts is everything the copy rules look at for one message. The engine
// gathers them; Decide never touches storage.
type Facts struct {
	Now time.Time

	// FirstContact is true only for the send that created the pair's
	// history record.
	FirstContact bool

	SenderJoinedAt  time.Time
	SenderMonitored bool
	SenderFlagged   bool
	ReceiverFlagged bool

	// ListingRisk is nil when the message is not about a listing or the
	// listing is untagged.
	ListingRisk *models.RiskLevel

	// Sample is a uniform draw in [0,100).
	Sample float64
}

// Decision is the outcome of the rule chain. Rule names the rule that
// decided, including the two non-copy outcomes.
type Decision struct {
	Copy   bool              `json:"copy"`
	Reason models.CopyReason `json:"copy_reason,omitempty"`
	Rule   string            `json:"rule"`
}

const (
	RuleVisibilityDisabled = "visibility_disabled"
	RuleNoMatch            = "no_match"
)

type rule struct {
	name   string
	reason models.CopyReason
	match  func(f Facts, cfg policy.Config) bool
}

// rules is evaluated top to bottom; the first match wins.
var rules = []rule{
	{
		name:   "first_contact",
		reason: models.CopyReasonFirstContact,
		match: func(f Facts, cfg policy.Config) bool {
			return cfg.Messaging.FirstContactMonitoring && cfg.BrokerVisibility.CopyFirstContact && f.FirstContact
		},
	},
	{
		name:   "new_member",
		reason: models.CopyReasonNewMember,
		match: func(f Facts, cfg policy.Config) bool {
			if !cfg.BrokerVisibility.CopyNewMemberMessages || cfg.Messaging.NewMemberMonitoringDays <= 0 {
				return false
			}
			return f.Now.Sub(f.SenderJoinedAt) <= cfg.NewMemberWindow()
		},
	},
	{
		name:   "high_risk_listing",
		reason: models.CopyReasonHighRiskListing,
		match: func(f Facts, cfg policy.Config) bool {
			return cfg.BrokerVisibility.CopyHighRiskListingMessages && f.ListingRisk != nil && f.ListingRisk.IsHigh()
		},
	},
	{
		name:   "flagged_user",
		reason: models.CopyReasonFlaggedUser,
		match: func(f Facts, _ policy.Config) bool {
			return f.SenderFlagged || f.ReceiverFlagged
		},
	},
	{
		name:   "manual_monitoring",
		reason: models.CopyReasonManualMonitoring,
		match: func(f Facts, _ policy.Config) bool {
			return f.SenderMonitored
		},
	},
	{
		name:   "random_sample",
		reason: models.CopyReasonRandomSample,
		match: func(f Facts, cfg policy.Config) bool {
			return f.Sample < float64(cfg.BrokerVisibility.RandomSamplePercentage)
		},
	},
}

// Decide runs the copy rules against f. It returns at most one reason.
func Decide(f Facts, cfg policy.Config) Decision {
	if !cfg.BrokerVisibility.Enabled {
		return Decision{Rule: RuleVisibilityDisabled}
	}
	for _, r := range rules {
		if r.match(f, cfg) {
			return Decision{Copy: true, Reason: r.reason, Rule: r.name}
		}
	}
	return Decision{Rule: RuleNoMatch}
}

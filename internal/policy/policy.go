// Package policy holds the per-tenant broker control configuration.
//
// A Config is loaded once per request or sweep tick and passed explicitly to
// every core call. Nothing in this package keeps process-wide state.
package policy

import (
	"fmt"
	"time"
)

type MessagingConfig struct {
	DirectMessagingEnabled     bool `json:"direct_messaging_enabled"`
	RequireExchangeForListings bool `json:"require_exchange_for_listings"`
	FirstContactMonitoring     bool `json:"first_contact_monitoring"`
	NewMemberMonitoringDays    int  `json:"new_member_monitoring_days"`
}

type RiskTaggingConfig struct {
	Enabled                  bool `json:"enabled"`
	HighRiskRequiresApproval bool `json:"high_risk_requires_approval"`
	NotifyOnHighRiskMatch    bool `json:"notify_on_high_risk_match"`
}

type ExchangeWorkflowConfig struct {
	Enabled                   bool    `json:"enabled"`
	RequireBrokerApproval     bool    `json:"require_broker_approval"`
	AutoApproveLowRisk        bool    `json:"auto_approve_low_risk"`
	MaxHoursWithoutApproval   float64 `json:"max_hours_without_approval"`
	ConfirmationDeadlineHours int     `json:"confirmation_deadline_hours"`
	ExpiryHours               int     `json:"expiry_hours"`
}

type BrokerVisibilityConfig struct {
	Enabled                     bool `json:"enabled"`
	CopyFirstContact            bool `json:"copy_first_contact"`
	CopyNewMemberMessages       bool `json:"copy_new_member_messages"`
	CopyHighRiskListingMessages bool `json:"copy_high_risk_listing_messages"`
	RandomSamplePercentage      int  `json:"random_sample_percentage"`
	RetentionDays               int  `json:"retention_days"`
}

// Config is the full broker control configuration of one tenant.
type Config struct {
	Messaging        MessagingConfig        `json:"messaging"`
	RiskTagging      RiskTaggingConfig      `json:"risk_tagging"`
	ExchangeWorkflow ExchangeWorkflowConfig `json:"exchange_workflow"`
	BrokerVisibility BrokerVisibilityConfig `json:"broker_visibility"`
}

// Default is the configuration of a tenant that never saved one.
func Default() Config {
	return Config{
		Messaging: MessagingConfig{
			DirectMessagingEnabled:     true,
			RequireExchangeForListings: false,
			FirstContactMonitoring:     true,
			NewMemberMonitoringDays:    30,
		},
		RiskTagging: RiskTaggingConfig{
			Enabled:                  true,
			HighRiskRequiresApproval: true,
			NotifyOnHighRiskMatch:    true,
		},
		ExchangeWorkflow: ExchangeWorkflowConfig{
			Enabled:                   true,
			RequireBrokerApproval:     false,
			AutoApproveLowRisk:        true,
			MaxHoursWithoutApproval:   4,
			ConfirmationDeadlineHours: 72,
			ExpiryHours:               168,
		},
		BrokerVisibility: BrokerVisibilityConfig{
			Enabled:                     true,
			CopyFirstContact:            true,
			CopyNewMemberMessages:       true,
			CopyHighRiskListingMessages: true,
			RandomSamplePercentage:      0,
			RetentionDays:               365,
		},
	}
}

// Validate rejects configurations the core cannot act on.
func (c Config) Validate() error {
	if c.Messaging.NewMemberMonitoringDays < 0 {
		return fmt.Errorf("messaging.new_member_monitoring_days must be >= 0")
	}
	wf := c.ExchangeWorkflow
	if wf.MaxHoursWithoutApproval < 0 {
		return fmt.Errorf("exchange_workflow.max_hours_without_approval must be >= 0")
	}
	if wf.ConfirmationDeadlineHours <= 0 {
		return fmt.Errorf("exchange_workflow.confirmation_deadline_hours must be > 0")
	}
	if wf.ExpiryHours <= 0 {
		return fmt.Errorf("exchange_workflow.expiry_hours must be > 0")
	}
	bv := c.BrokerVisibility
	if bv.RandomSamplePercentage < 0 || bv.RandomSamplePercentage > 100 {
		return fmt.Errorf("broker_visibility.random_sample_percentage must be between 0 and 100")
	}
	if bv.RetentionDays <= 0 {
		return fmt.Errorf("broker_visibility.retention_days must be > 0")
	}
	return nil
}

// NewMemberWindow is how long after joining a member's messages are copied.
func (c Config) NewMemberWindow() time.Duration {
	return time.Duration(c.Messaging.NewMemberMonitoringDays) * 24 * time.Hour
}

func (c Config) ExpiryWindow() time.Duration {
	return time.Duration(c.ExchangeWorkflow.ExpiryHours) * time.Hour
}

func (c Config) ConfirmationWindow() time.Duration {
	return time.Duration(c.ExchangeWorkflow.ConfirmationDeadlineHours) * time.Hour
}

func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.BrokerVisibility.RetentionDays) * 24 * time.Hour
}

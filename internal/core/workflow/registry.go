package workflow

import (
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

// DefaultRegistry returns the built-in workflow per classified source.
func DefaultRegistry() map[domain.SourceTag]domain.WorkflowDefinition {
	definitions := []domain.WorkflowDefinition{
		{
			Source:       domain.SourcePartnerChannelA,
			PriorityTier: domain.PriorityHigh,
			ResponseSLA:  domain.SLAImmediate,
			RequiredActions: []domain.Action{
				{Title: "Call lead", Description: "Partner A leads expect a call within the hour."},
				{Title: "Confirm receipt to partner", Description: "Acknowledge the lead in the partner A portal."},
			},
			SuggestedActions: []domain.Action{
				{Title: "Prepare offer", Description: "Draft an offer based on the request details."},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"partner", "partner_a"}},
				{Kind: domain.AutoActionNotifyTeam, Trigger: domain.TriggerImmediate, Channel: "sales"},
				{Kind: domain.AutoActionFollowUpRemind, Trigger: domain.TriggerDelayed, Delay: 24 * time.Hour},
			},
		},
		{
			Source:       domain.SourcePartnerChannelB,
			PriorityTier: domain.PriorityHigh,
			ResponseSLA:  domain.SLAImmediate,
			RequiredActions: []domain.Action{
				{Title: "Contact lead", Description: "Reach out by phone or email."},
			},
			SuggestedActions: []domain.Action{
				{Title: "Check partner terms", Description: "Verify commission terms for partner B."},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"partner", "partner_b"}},
				{Kind: domain.AutoActionNotifyTeam, Trigger: domain.TriggerImmediate, Channel: "sales"},
			},
		},
		{
			Source:       domain.SourceAdNetwork,
			PriorityTier: domain.PriorityMedium,
			ResponseSLA:  domain.SLASameDay,
			RequiredActions: []domain.Action{
				{Title: "Qualify ad lead", Description: "Check budget and intent before investing time."},
			},
			SuggestedActions: []domain.Action{
				{Title: "Review campaign attribution"},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"ads"}},
				{Kind: domain.AutoActionFollowUpRemind, Trigger: domain.TriggerDelayed, Delay: 48 * time.Hour},
			},
		},
		{
			Source:       domain.SourceOwnWebsite,
			PriorityTier: domain.PriorityHigh,
			ResponseSLA:  domain.SLASameDay,
			RequiredActions: []domain.Action{
				{Title: "Answer website inquiry"},
			},
			SuggestedActions: []domain.Action{
				{Title: "Send portfolio", Description: "Share references matching the inquiry."},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"website"}},
				{Kind: domain.AutoActionNotifyTeam, Trigger: domain.TriggerImmediate, Channel: "sales"},
			},
		},
		{
			Source:       domain.SourceReferral,
			PriorityTier: domain.PriorityHigh,
			ResponseSLA:  domain.SLAImmediate,
			RequiredActions: []domain.Action{
				{Title: "Call referred lead"},
			},
			SuggestedActions: []domain.Action{
				{Title: "Thank referrer"},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"referral"}},
				{Kind: domain.AutoActionNotifyTeam, Trigger: domain.TriggerImmediate, Channel: "sales"},
			},
		},
		{
			Source:       domain.SourcePhone,
			PriorityTier: domain.PriorityHigh,
			ResponseSLA:  domain.SLAImmediate,
			RequiredActions: []domain.Action{
				{Title: "Return call"},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"phone"}},
			},
		},
		{
			Source:       domain.SourceSocialMedia,
			PriorityTier: domain.PriorityMedium,
			ResponseSLA:  domain.SLASameDay,
			RequiredActions: []domain.Action{
				{Title: "Reply on social channel"},
			},
			SuggestedActions: []domain.Action{
				{Title: "Connect with contact"},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"social"}},
			},
		},
		{
			Source:       domain.SourceAccountingImport,
			PriorityTier: domain.PriorityLow,
			ResponseSLA:  domain.SLAStandard,
			RequiredActions: []domain.Action{
				{Title: "Review accounting record", Description: "Match the imported record against open invoices."},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"accounting"}},
				{Kind: domain.AutoActionMoveStage, Trigger: domain.TriggerImmediate, Stage: domain.StageFinance},
				{Kind: domain.AutoActionCreateInvoice, Trigger: domain.TriggerImmediate, Currency: "EUR"},
			},
		},
		{
			Source:       domain.SourceDirect,
			PriorityTier: domain.PriorityMedium,
			ResponseSLA:  domain.SLASameDay,
			RequiredActions: []domain.Action{
				{Title: "Respond to inquiry"},
			},
			SuggestedActions: []domain.Action{
				{Title: "Complete contact details"},
			},
			AutoActions: []domain.AutoAction{
				{Kind: domain.AutoActionTagLead, Trigger: domain.TriggerImmediate, Tags: []string{"direct"}},
			},
		},
	}

	registry := make(map[domain.SourceTag]domain.WorkflowDefinition, len(definitions))
	for _, def := range definitions {
		registry[def.Source] = def
	}
	return registry
}

// FallbackDefinition applies to unknown or unregistered sources: low priority, nothing blocking.
func FallbackDefinition() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		Source:          domain.SourceUnknown,
		PriorityTier:    domain.PriorityLow,
		ResponseSLA:     domain.SLAStandard,
		RequiredActions: []domain.Action{},
		SuggestedActions: []domain.Action{
			{Title: "Review unclassified message", Description: "Decide whether the message is a lead."},
		},
		AutoActions: []domain.AutoAction{},
	}
}

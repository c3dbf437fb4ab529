package domain

type SourceTag string

const (
	SourcePartnerChannelA  SourceTag = "partner_channel_a"
	SourcePartnerChannelB  SourceTag = "partner_channel_b"
	SourceAdNetwork        SourceTag = "ad_network"
	SourceOwnWebsite       SourceTag = "own_website"
	SourceReferral         SourceTag = "referral"
	SourcePhone            SourceTag = "phone"
	SourceSocialMedia      SourceTag = "social_media"
	SourceAccountingImport SourceTag = "accounting_import"
	SourceDirect           SourceTag = "direct"
	SourceUnknown          SourceTag = "unknown"
)

var knownSources = map[SourceTag]struct{}{
	SourcePartnerChannelA:  {},
	SourcePartnerChannelB:  {},
	SourceAdNetwork:        {},
	SourceOwnWebsite:       {},
	SourceReferral:         {},
	SourcePhone:            {},
	SourceSocialMedia:      {},
	SourceAccountingImport: {},
	SourceDirect:           {},
	SourceUnknown:          {},
}

func (s SourceTag) Valid() bool {
	_, ok := knownSources[s]
	return ok
}

// ClassificationResult is produced fresh per message and never persisted as a whole.
type ClassificationResult struct {
	Source          SourceTag `json:"source" yaml:"source"`
	Confidence      int       `json:"confidence" yaml:"confidence"`
	Reasoning       string    `json:"reasoning" yaml:"reasoning"`
	MatchedPatterns []string  `json:"matched_patterns" yaml:"matched_patterns"`
}

// SourcePattern is one entry of the ordered classifier registry.
type SourcePattern struct {
	Source   SourceTag `json:"source" yaml:"source"`
	Weight   float64   `json:"weight" yaml:"weight"`
	Domains  []string  `json:"domains,omitempty" yaml:"domains,omitempty"`
	Subjects []string  `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Bodies   []string  `json:"bodies,omitempty" yaml:"bodies,omitempty"`
}

package policy

import "github.com/kirillkom/lead-pipeline/internal/core/domain"

// defaultSources is ordered: on equal confidence the earlier entry wins.
var defaultSources = []domain.SourcePattern{
	{
		Source:   domain.SourcePartnerChannelA,
		Weight:   95,
		Domains:  []string{"partner-a.com", "leads.partner-a"},
		Subjects: []string{"new lead", "lead request", "anfrage über partner a"},
		Bodies:   []string{"lead-id:", "partner a reference"},
	},
	{
		Source:   domain.SourcePartnerChannelB,
		Weight:   90,
		Domains:  []string{"partner-b.com", "mail.partner-b"},
		Subjects: []string{"customer request", "request via partner b"},
		Bodies:   []string{"partner b", "request number:"},
	},
	{
		Source:   domain.SourceAdNetwork,
		Weight:   80,
		Domains:  []string{"googleadservices", "ads.google.com", "leadads", "adform"},
		Subjects: []string{"lead form", "ad lead", "new lead ad"},
		Bodies:   []string{"utm_source", "gclid", "fbclid"},
	},
	{
		Source:   domain.SourceOwnWebsite,
		Weight:   85,
		Domains:  []string{"webform", "contact-form", "wordpress@"},
		Subjects: []string{"contact form", "website inquiry", "new submission"},
		Bodies:   []string{"submitted via contact form", "sent from the website"},
	},
	{
		Source:   domain.SourceReferral,
		Weight:   75,
		Subjects: []string{"referred by", "recommendation", "referral"},
		Bodies:   []string{"recommended you", "referred me", "referral from"},
	},
	{
		Source:   domain.SourcePhone,
		Weight:   70,
		Domains:  []string{"voicemail", "callcenter", "telephony"},
		Subjects: []string{"missed call", "voicemail", "callback request"},
		Bodies:   []string{"caller id", "please call back", "phone number:"},
	},
	{
		Source:   domain.SourceSocialMedia,
		Weight:   65,
		Domains:  []string{"linkedin.com", "facebookmail.com", "instagram.com", "xing.com"},
		Subjects: []string{"sent you a message", "new message on", "instagram"},
		Bodies:   []string{"linkedin", "via social media"},
	},
	{
		Source:   domain.SourceAccountingImport,
		Weight:   60,
		Domains:  []string{"datev", "lexoffice", "sevdesk", "quickbooks", "xero.com"},
		Subjects: []string{"invoice", "receipt", "payment reminder", "export"},
		Bodies:   []string{"invoice number", "amount due", "iban"},
	},
	{
		Source:   domain.SourceDirect,
		Weight:   50,
		Subjects: []string{"inquiry", "quote request", "request for quote", "appointment"},
		Bodies:   []string{"i would like", "please contact me", "could you"},
	},
}

var defaultSourceBonus = map[domain.SourceTag]int{
	domain.SourcePartnerChannelA:  10,
	domain.SourcePartnerChannelB:  10,
	domain.SourceAdNetwork:        0,
	domain.SourceOwnWebsite:       5,
	domain.SourceReferral:         15,
	domain.SourcePhone:            5,
	domain.SourceSocialMedia:      -5,
	domain.SourceAccountingImport: -15,
	domain.SourceDirect:           0,
	domain.SourceUnknown:          -10,
}

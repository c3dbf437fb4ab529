package classifier

import (
	"reflect"
	"testing"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/policy"
)

func TestClassifyPartnerDomainAndSubject(t *testing.T) {
	c := New(policy.Default())
	result := c.Classify(domain.InboundMessage{
		From:    "leads@partner-a.com",
		To:      "sales@example.com",
		Subject: "NEW LEAD: kitchen renovation",
		Body:    "Hello",
	})

	if result.Source != domain.SourcePartnerChannelA {
		t.Fatalf("expected partner_channel_a, got %s (%s)", result.Source, result.Reasoning)
	}
	if result.Confidence < 80 {
		t.Fatalf("expected confidence >= 80, got %d", result.Confidence)
	}
	// 95*0.6 + 95*0.3 = 85.5
	if result.Confidence != 86 {
		t.Fatalf("expected confidence 86, got %d", result.Confidence)
	}
	want := []string{"domain:partner-a.com", "subject:new lead"}
	if !reflect.DeepEqual(result.MatchedPatterns, want) {
		t.Fatalf("matched patterns = %v, want %v", result.MatchedPatterns, want)
	}
}

func TestClassifyMatchesRecipientDomain(t *testing.T) {
	c := New(policy.Default())
	result := c.Classify(domain.InboundMessage{
		From: "someone@example.org",
		To:   "inbox@leads.partner-a.net",
	})
	if result.Source != domain.SourcePartnerChannelA {
		t.Fatalf("expected recipient domain to match partner_channel_a, got %s", result.Source)
	}
	if result.Confidence != 57 {
		t.Fatalf("expected confidence 57, got %d", result.Confidence)
	}
}

func TestClassifyNoMatchReturnsUnknown(t *testing.T) {
	c := New(policy.Default())
	result := c.Classify(domain.InboundMessage{
		From:    "alice@example.org",
		To:      "sales@example.com",
		Subject: "Hello",
		Body:    "Just saying hi.",
	})
	if result.Source != domain.SourceUnknown {
		t.Fatalf("expected unknown, got %s", result.Source)
	}
	if result.Confidence != 20 {
		t.Fatalf("expected confidence 20, got %d", result.Confidence)
	}
	if result.Reasoning != "no pattern matched" {
		t.Fatalf("unexpected reasoning %q", result.Reasoning)
	}
	if len(result.MatchedPatterns) != 0 {
		t.Fatalf("expected no matched patterns, got %v", result.MatchedPatterns)
	}
}

func TestClassifyEmptyMessage(t *testing.T) {
	c := New(policy.Default())
	result := c.Classify(domain.InboundMessage{})
	if result.Source != domain.SourceUnknown || result.Confidence != 20 {
		t.Fatalf("expected unknown/20 for empty message, got %+v", result)
	}
}

func TestClassifyTieKeepsEarlierRegistryEntry(t *testing.T) {
	p := policy.Default()
	p.Sources = []domain.SourcePattern{
		{Source: domain.SourceDirect, Weight: 50, Subjects: []string{"quote"}},
		{Source: domain.SourceReferral, Weight: 50, Subjects: []string{"quote"}},
	}
	msg := domain.InboundMessage{Subject: "Quote please"}

	if got := New(p).Classify(msg).Source; got != domain.SourceDirect {
		t.Fatalf("expected earlier entry direct to win the tie, got %s", got)
	}

	p.Sources[0], p.Sources[1] = p.Sources[1], p.Sources[0]
	if got := New(p).Classify(msg).Source; got != domain.SourceReferral {
		t.Fatalf("expected earlier entry referral to win the tie, got %s", got)
	}
}

func TestClassifyHighestConfidenceWins(t *testing.T) {
	p := policy.Default()
	p.Sources = []domain.SourcePattern{
		{Source: domain.SourceDirect, Weight: 50, Subjects: []string{"quote"}},
		{Source: domain.SourcePhone, Weight: 90, Bodies: []string{"call"}, Subjects: []string{"quote"}},
	}
	result := New(p).Classify(domain.InboundMessage{Subject: "quote", Body: "please call"})
	if result.Source != domain.SourcePhone {
		t.Fatalf("expected phone, got %s", result.Source)
	}
	// 90*0.3 + 90*0.1 = 36
	if result.Confidence != 36 {
		t.Fatalf("expected 36, got %d", result.Confidence)
	}
}

func TestClassifyClampsRunningTotal(t *testing.T) {
	p := policy.Default()
	p.Sources = []domain.SourcePattern{
		{
			Source:   domain.SourcePartnerChannelB,
			Weight:   100,
			Domains:  []string{"partner-b", "partner-b.com", "mail.partner-b"},
			Subjects: []string{"request"},
		},
	}
	result := New(p).Classify(domain.InboundMessage{
		From:    "x@mail.partner-b.com",
		Subject: "request",
	})
	if result.Confidence != 100 {
		t.Fatalf("expected clamped confidence 100, got %d", result.Confidence)
	}
	if len(result.MatchedPatterns) != 4 {
		t.Fatalf("expected all 4 contributing patterns recorded, got %v", result.MatchedPatterns)
	}
}

func TestClassifyIsDeterministicAndBounded(t *testing.T) {
	c := New(policy.Default())
	inputs := []domain.InboundMessage{
		{},
		{From: "ads@googleadservices.com", Subject: "Lead form", Body: "utm_source=x gclid=y"},
		{From: "noreply@linkedin.com", Subject: "Anna sent you a message", Body: "LinkedIn"},
		{From: "export@datev.de", Subject: "Invoice 42", Body: "Invoice number 42, amount due, IBAN"},
		{From: "a@partner-a.com", To: "b@partner-b.com", Subject: "new lead customer request lead request", Body: "lead-id: partner b"},
		{Subject: "Missed call", Body: "Caller ID +49 30 1234567, please call back"},
	}
	for _, msg := range inputs {
		first := c.Classify(msg)
		second := c.Classify(msg)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("classification not deterministic for %+v: %+v vs %+v", msg, first, second)
		}
		if first.Confidence < 0 || first.Confidence > 100 {
			t.Fatalf("confidence out of range for %+v: %d", msg, first.Confidence)
		}
	}
}

// Package classifier scores inbound messages against the ordered source registry.
package classifier

import (
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/policy"
)

const noMatchReasoning = "no pattern matched"

// SourceClassifier is pure and safe for concurrent use; it holds only read-only policy.
type SourceClassifier struct {
	weights           policy.Weights
	sources           []domain.SourcePattern
	unknownConfidence int
}

func New(p policy.Policy) *SourceClassifier {
	sources := make([]domain.SourcePattern, 0, len(p.Sources))
	for _, src := range p.Sources {
		sources = append(sources, domain.SourcePattern{
			Source:   src.Source,
			Weight:   src.Weight,
			Domains:  lowerAll(src.Domains),
			Subjects: lowerAll(src.Subjects),
			Bodies:   lowerAll(src.Bodies),
		})
	}
	return &SourceClassifier{
		weights:           p.Weights,
		sources:           sources,
		unknownConfidence: p.UnknownConfidence,
	}
}

type candidate struct {
	source     domain.SourceTag
	confidence float64
	matched    []string
}

func (c *SourceClassifier) Classify(msg domain.InboundMessage) domain.ClassificationResult {
	from := strings.ToLower(msg.From)
	to := strings.ToLower(msg.To)
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)

	var best *candidate
	for _, src := range c.sources {
		cand := candidate{source: src.Source}

		for _, pattern := range src.Domains {
			if pattern != "" && (strings.Contains(from, pattern) || strings.Contains(to, pattern)) {
				cand.add(src.Weight*c.weights.Domain, "domain:"+pattern)
			}
		}
		for _, pattern := range src.Subjects {
			if pattern != "" && strings.Contains(subject, pattern) {
				cand.add(src.Weight*c.weights.Subject, "subject:"+pattern)
			}
		}
		for _, pattern := range src.Bodies {
			if pattern != "" && strings.Contains(body, pattern) {
				cand.add(src.Weight*c.weights.Body, "body:"+pattern)
			}
		}

		if len(cand.matched) == 0 {
			continue
		}
		// Strictly greater: ties keep the earlier registry entry.
		if best == nil || cand.confidence > best.confidence {
			found := cand
			best = &found
		}
	}

	if best == nil {
		return domain.ClassificationResult{
			Source:          domain.SourceUnknown,
			Confidence:      c.unknownConfidence,
			Reasoning:       noMatchReasoning,
			MatchedPatterns: []string{},
		}
	}

	confidence := int(math.Round(best.confidence))
	reasoning := fmt.Sprintf("%s matched %d pattern(s) with confidence %d: %s",
		best.source, len(best.matched), confidence, strings.Join(best.matched, ", "))
	return domain.ClassificationResult{
		Source:          best.source,
		Confidence:      confidence,
		Reasoning:       reasoning,
		MatchedPatterns: best.matched,
	}
}

func (c *candidate) add(delta float64, pattern string) {
	c.confidence = math.Min(100, math.Max(0, c.confidence+delta))
	c.matched = append(c.matched, pattern)
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

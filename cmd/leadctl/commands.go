package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/lead-pipeline/internal/bootstrap"
	"github.com/kirillkom/lead-pipeline/internal/core/classifier"
	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/policy"
	"github.com/kirillkom/lead-pipeline/internal/core/workflow"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/email/maildir"
)

type rootOptions struct {
	policyFile string
	output     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "leadctl",
		Short: "Inspect lead classification and workflow rules offline",
		Long: `leadctl runs the lead pipeline's pure stages locally.

It classifies sample messages, prints the workflow a source resolves to,
parses .eml files the way the inbox monitor does and shows the effective
tuning policy. No database, queue or external service is contacted.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.policyFile, "policy", os.Getenv("POLICY_FILE"), "YAML policy file merged over the defaults")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "Output format: yaml or json")

	root.AddCommand(
		newClassifyCommand(opts),
		newWorkflowCommand(opts),
		newInspectEMLCommand(opts),
		newPolicyCommand(opts),
	)
	return root
}

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	var msg domain.InboundMessage

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a message given on the command line",
		Example: `  leadctl classify --from lead@partner-a.example --subject "New lead" --body "Budget 10k"`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pol, err := bootstrap.LoadPolicy(opts.policyFile)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, describe(pol, msg))
		},
	}
	cmd.Flags().StringVar(&msg.From, "from", "", "Sender address")
	cmd.Flags().StringVar(&msg.Subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&msg.Body, "body", "", "Message body")
	return cmd
}

func newWorkflowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "workflow <source>",
		Short: "Print the workflow a source tag resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := domain.SourceTag(strings.TrimSpace(args[0]))
			if !source.Valid() {
				return fmt.Errorf("unknown source %q", args[0])
			}
			pol, err := bootstrap.LoadPolicy(opts.policyFile)
			if err != nil {
				return err
			}
			resolver := workflow.NewResolver(pol.Workflows...)
			return writeOutput(cmd.OutOrStdout(), opts.output, resolver.Definition(source))
		},
	}
}

func newInspectEMLCommand(opts *rootOptions) *cobra.Command {
	var maxBody int

	cmd := &cobra.Command{
		Use:   "inspect-eml <file>",
		Short: "Parse an .eml file and classify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			parsed, err := maildir.Parse(raw, maxBody)
			if err != nil {
				return err
			}
			pol, err := bootstrap.LoadPolicy(opts.policyFile)
			if err != nil {
				return err
			}
			id := parsed.MessageID
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, describe(pol, parsed.Inbound(id)))
		},
	}
	cmd.Flags().IntVar(&maxBody, "max-body", 1<<20, "Truncate the decoded body to this many bytes")
	return cmd
}

func newPolicyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective tuning policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pol, err := bootstrap.LoadPolicy(opts.policyFile)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, pol)
		},
	}
}

type messageReport struct {
	Message        messageSummary              `json:"message" yaml:"message"`
	Classification domain.ClassificationResult `json:"classification" yaml:"classification"`
	Score          int                         `json:"score" yaml:"score"`
	LeadStatus     domain.LeadStatus           `json:"lead_status" yaml:"lead_status"`
	CreateCustomer bool                        `json:"create_customer" yaml:"create_customer"`
	Workflow       domain.WorkflowDefinition   `json:"workflow" yaml:"workflow"`
}

type messageSummary struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	ThreadKey string `json:"thread_key,omitempty" yaml:"thread_key,omitempty"`
	From      string `json:"from" yaml:"from"`
	To        string `json:"to,omitempty" yaml:"to,omitempty"`
	Subject   string `json:"subject" yaml:"subject"`
	Date      string `json:"date,omitempty" yaml:"date,omitempty"`
	BodyBytes int    `json:"body_bytes" yaml:"body_bytes"`
}

func describe(pol policy.Policy, msg domain.InboundMessage) messageReport {
	result := classifier.New(pol).Classify(msg)
	summary := messageSummary{
		ID:        msg.ID,
		ThreadKey: msg.ThreadKey,
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		BodyBytes: len(msg.Body),
	}
	if !msg.Date.IsZero() {
		summary.Date = msg.Date.Format(time.RFC3339)
	}
	return messageReport{
		Message:        summary,
		Classification: result,
		Score:          pol.Score(result),
		LeadStatus:     pol.LeadStatusFor(result.Confidence),
		CreateCustomer: pol.ShouldAutoCreateCustomer(result.Confidence),
		Workflow:       workflow.NewResolver(pol.Workflows...).Resolve(result),
	}
}

func writeOutput(w io.Writer, format string, value any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.New("output must be yaml or json")
	}
}

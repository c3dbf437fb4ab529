package httpadapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

const (
	signatureHeader = "X-Webhook-Signature"
	signaturePrefix = "sha256="
	maxWebhookBody  = 1 << 20
)

var errBadSignature = errors.New("invalid webhook signature")

type inboundWebhookRequest struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Date      string `json:"date"`
}

func (rt *Router) inboundWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		rt.recordWebhook("invalid")
		writeError(w, http.StatusBadRequest, errors.New("request body too large or unreadable"))
		return
	}

	if len(rt.webhookSecret) > 0 {
		if err := verifySignature(rt.webhookSecret, raw, r.Header.Get(signatureHeader)); err != nil {
			rt.recordWebhook("unauthorized")
			writeError(w, http.StatusUnauthorized, err)
			return
		}
	}

	var req inboundWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		rt.recordWebhook("invalid")
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	msg, err := req.toMessage()
	if err != nil {
		rt.recordWebhook("invalid")
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := rt.ingest.Accept(r.Context(), msg); err != nil {
		if domain.IsKind(err, domain.ErrValidation) {
			rt.recordWebhook("invalid")
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rt.recordWebhook("failed")
		slog.Error("webhook_publish_failed",
			"request_id", requestIDFromContext(r.Context()),
			"message_id", msg.ID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	rt.recordWebhook("accepted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (req inboundWebhookRequest) toMessage() (domain.InboundMessage, error) {
	var missing []string
	if strings.TrimSpace(req.MessageID) == "" {
		missing = append(missing, "messageId")
	}
	if strings.TrimSpace(req.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(req.To) == "" {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return domain.InboundMessage{}, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	msg := domain.InboundMessage{
		ID:        req.MessageID,
		ThreadKey: req.ThreadID,
		From:      req.From,
		To:        req.To,
		Subject:   req.Subject,
		Body:      req.Body,
	}
	if date := strings.TrimSpace(req.Date); date != "" {
		parsed, err := parseWebhookDate(date)
		if err != nil {
			return domain.InboundMessage{}, fmt.Errorf("invalid date %q", date)
		}
		msg.Date = parsed
	}
	return msg, nil
}

// parseWebhookDate accepts RFC 3339 and RFC 5322 dates.
func parseWebhookDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := mail.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func verifySignature(secret, body []byte, header string) error {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) {
		return errBadSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return errBadSignature
	}
	if !hmac.Equal(got, signBody(secret, body)) {
		return errBadSignature
	}
	return nil
}

func signBody(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

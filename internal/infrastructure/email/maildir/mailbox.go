// Package maildir reads inbound mail from a Maildir directory. Messages in
// new/ are unread; MarkRead moves them to cur/ with the seen flag.
package maildir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type Mailbox struct {
	root        string
	maxBodySize int
}

func New(root string, maxBodySize int) (*Mailbox, error) {
	for _, sub := range []string{"new", "cur", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create maildir %s: %w", sub, err)
		}
	}
	return &Mailbox{root: root, maxBodySize: maxBodySize}, nil
}

// ListUnread returns up to maxResults unread messages, oldest first.
func (m *Mailbox) ListUnread(ctx context.Context, maxResults int) ([]domain.MessageRef, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, "new"))
	if err != nil {
		return nil, domain.WrapError(domain.ErrServiceUnavailable, "list maildir", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	// Maildir names start with the delivery timestamp.
	sort.Strings(names)

	refs := make([]domain.MessageRef, 0, min(len(names), max(maxResults, 0)))
	for _, name := range names {
		if maxResults > 0 && len(refs) >= maxResults {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(m.root, "new", name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		parsed, err := Parse(raw, 0)
		if err != nil {
			refs = append(refs, domain.MessageRef{ID: messageKey(name)})
			continue
		}
		refs = append(refs, domain.MessageRef{
			ID:        messageKey(name),
			ThreadKey: parsed.ThreadKey,
			From:      parsed.From,
			Subject:   parsed.Subject,
		})
	}
	return refs, nil
}

func (m *Mailbox) GetMessage(_ context.Context, id string) (*domain.InboundMessage, error) {
	path, err := m.find(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message %s: %w", id, err)
	}
	parsed, err := Parse(raw, m.maxBodySize)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "parse message "+id, err)
	}
	msg := parsed.Inbound(id)
	return &msg, nil
}

// MarkRead moves the message from new/ to cur/ and sets the seen flag.
func (m *Mailbox) MarkRead(_ context.Context, id string) error {
	src := filepath.Join(m.root, "new", id)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat message %s: %w", id, err)
	}
	dst := filepath.Join(m.root, "cur", id+":2,S")
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("mark %s read: %w", id, err)
	}
	return nil
}

func (m *Mailbox) find(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", domain.WrapError(domain.ErrValidation, "get message", fmt.Errorf("invalid id %q", id))
	}
	candidate := filepath.Join(m.root, "new", id)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	matches, err := filepath.Glob(filepath.Join(m.root, "cur", id+":2,*"))
	if err != nil {
		return "", fmt.Errorf("glob cur: %w", err)
	}
	if len(matches) == 0 {
		return "", domain.WrapError(domain.ErrNotFound, "get message", fmt.Errorf("id=%s", id))
	}
	return matches[0], nil
}

// messageKey strips the maildir info suffix.
func messageKey(name string) string {
	if i := strings.Index(name, ":2,"); i >= 0 {
		return name[:i]
	}
	return name
}

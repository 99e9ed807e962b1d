package notify

import (
	"context"
	"sort"
	"strings"

	personnel "incident-cloud/internal/personnel/domain"
)

// Directory lists the people a notification can reach.
type Directory interface {
	ListNotifiable(ctx context.Context) ([]personnel.Personnel, error)
	ListAdminStaff(ctx context.Context) ([]personnel.Personnel, error)
}

// Recipient is one addressed notification target.
type Recipient struct {
	PersonnelID string
	Name        string
	Email       string
}

// ResolveRecipients builds the recipient set for a verified incident:
// every notifiable field member plus the admin staff, deduplicated by
// personnel id. Members without an email are kept; they are still
// addressed through their personal room.
func ResolveRecipients(ctx context.Context, directory Directory) ([]Recipient, error) {
	if directory == nil {
		return nil, nil
	}
	notifiable, err := directory.ListNotifiable(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := directory.ListAdminStaff(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(notifiable)+len(staff))
	recipients := make([]Recipient, 0, len(notifiable)+len(staff))
	for _, member := range append(notifiable, staff...) {
		if member.ID == "" {
			continue
		}
		if _, dup := seen[member.ID]; dup {
			continue
		}
		seen[member.ID] = struct{}{}
		recipients = append(recipients, Recipient{
			PersonnelID: member.ID,
			Name:        member.Name,
			Email:       strings.TrimSpace(strings.ToLower(member.Email)),
		})
	}
	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].PersonnelID < recipients[j].PersonnelID
	})
	return recipients, nil
}

// Emails returns the distinct non-empty addresses of the recipients.
func Emails(recipients []Recipient) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient.Email == "" {
			continue
		}
		if _, dup := seen[recipient.Email]; dup {
			continue
		}
		seen[recipient.Email] = struct{}{}
		out = append(out, recipient.Email)
	}
	return out
}

package reconcile

import (
	"github.com/google/uuid"

	"opsdeck/internal/domain"
)

// templateEntry is one line of the fixed onboarding template.
type templateEntry struct {
	category string
	name     string
}

// defaultTemplate is the fixed ordered item set every auto-created
// checklist starts with. Categories group related setup steps; ordering is
// preserved through the position column.
var defaultTemplate = []templateEntry{
	{"Accounts", "Create Active Directory account"},
	{"Accounts", "Create email mailbox"},
	{"Accounts", "Add to distribution lists"},
	{"Accounts", "Create VPN profile"},
	{"Accounts", "Register in password manager"},
	{"Hardware", "Order laptop"},
	{"Hardware", "Image laptop with standard build"},
	{"Hardware", "Assign monitor and dock"},
	{"Hardware", "Provision mobile phone"},
	{"Hardware", "Record assets in inventory"},
	{"Software", "Install office suite"},
	{"Software", "Install endpoint protection"},
	{"Software", "Grant ticketing system access"},
	{"Software", "Grant BI dashboard access"},
	{"Software", "Set up chat and conferencing"},
	{"Access", "Badge and building access"},
	{"Access", "Add to on-call rotation tooling"},
	{"Access", "File share permissions"},
	{"Access", "Printer access"},
	{"Orientation", "Schedule IT intro session"},
	{"Orientation", "Send welcome documentation"},
	{"Orientation", "Verify first-day login"},
}

// DefaultItems returns a fresh pending item set from the template.
func DefaultItems() []domain.ChecklistItem {
	items := make([]domain.ChecklistItem, 0, len(defaultTemplate))
	for i, e := range defaultTemplate {
		items = append(items, domain.ChecklistItem{
			ID:       uuid.NewString(),
			Category: e.category,
			Name:     e.name,
			Status:   domain.ItemPending,
			Position: i,
		})
	}
	return items
}

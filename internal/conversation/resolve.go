package conversation

import "github.com/matheus3301/msgr/internal/contacts"

// ResolveName is the single display-name fallback chain: current
// participant, last known participant, repository, raw identifier.
func ResolveName(id string, participants map[string]contacts.Contact, lastKnown *contacts.Contact, repo *contacts.Repository) string {
	if c, ok := participants[id]; ok {
		return c.Name()
	}
	if lastKnown != nil && lastKnown.ID == id {
		return lastKnown.Name()
	}
	if repo != nil {
		if c, ok := repo.Get(id); ok {
			return c.Name()
		}
	}
	return id
}

package model

// Chat is the Chat Directory's view of a chat. The directory service owns
// chat existence and membership; field names follow its wire contract.
type Chat struct {
	ID             string   `json:"id"`
	Kind           string   `json:"type"`
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
}

func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

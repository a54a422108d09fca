package domain

// ConversationID identifies the logical two-party channel a call belongs to.
// Owned by the messaging backend; the call core only routes by it.
type ConversationID string

// MaxParticipants is the number of members a call conversation can hold.
const MaxParticipants = 2

type Conversation struct {
	ID           ConversationID
	Participants []UserID
}

// PeerOf returns the other participant, or false when self is not a member
// or the conversation is not yet paired.
func (c Conversation) PeerOf(self UserID) (UserID, bool) {
	found := false
	var peer UserID
	for _, p := range c.Participants {
		if p == self {
			found = true
			continue
		}
		peer = p
	}
	return peer, found && peer != ""
}

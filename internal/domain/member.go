package domain

import "time"

// Member is a user's presence in one conversation on the relay.
type Member struct {
	User        *User
	ConnectedAt time.Time
}

func NewMember(user *User) *Member {
	return &Member{User: user, ConnectedAt: time.Now()}
}

package domain

// Participant is one entry of a room's presence list.
// No transport or lifecycle logic here.
type Participant struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(user User) Participant {
	return Participant{ID: user.ID, Username: user.Username, Email: user.Email}
}

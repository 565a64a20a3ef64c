package collab

// InvitedParty is the invited side of a collaboration: either an artist with
// an artist record, or a generic user.
type InvitedParty interface {
	PartyUserID() string
	invitedParty()
}

type ArtistParty struct {
	UserID   string
	ArtistID string
}

func (p ArtistParty) PartyUserID() string { return p.UserID }
func (ArtistParty) invitedParty()         {}

type UserParty struct {
	UserID string
}

func (p UserParty) PartyUserID() string { return p.UserID }
func (UserParty) invitedParty()         {}

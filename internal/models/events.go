package models

// Subjects on the ORG_EVENTS stream.
const (
	SubjectEmailInviteRequested = "orgs.invites.email_requested"
	SubjectMemberJoined         = "orgs.members.joined"
)

// EmailInviteRequested is the wire format published when an admin invites an email.
type EmailInviteRequested struct {
	V                int    `msgpack:"v"`
	TS               int64  `msgpack:"ts"`
	InviteID         string `msgpack:"invite_id"`
	OrganizationID   string `msgpack:"organization_id"`
	OrganizationName string `msgpack:"organization_name"`
	Email            string `msgpack:"email"`
	Role             string `msgpack:"role"`
	AcceptURL        string `msgpack:"accept_url"`
	InvitedBy        string `msgpack:"invited_by"`
}

// MemberJoined is published after an invite produced a new membership.
type MemberJoined struct {
	V                int    `msgpack:"v"`
	TS               int64  `msgpack:"ts"`
	OrganizationID   string `msgpack:"organization_id"`
	OrganizationSlug string `msgpack:"organization_slug"`
	OrganizationName string `msgpack:"organization_name"`
	UserID           string `msgpack:"user_id"`
	UserEmail        string `msgpack:"user_email"`
	Role             string `msgpack:"role"`
	Via              string `msgpack:"via"`
}

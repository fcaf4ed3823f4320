package invite

// Decision is what should happen to a resolved invite for a given user.
type Decision int

const (
	AlreadyMember Decision = iota
	DeferToOnboarding
	AcceptAndJoin
)

func (d Decision) String() string {
	switch d {
	case AlreadyMember:
		return "already_member"
	case DeferToOnboarding:
		return "defer_to_onboarding"
	case AcceptAndJoin:
		return "accept_and_join"
	}
	return "unknown"
}

// Facts are the inputs of Decide, gathered from storage by the caller.
type Facts struct {
	AlreadyMember bool
	Onboarded     bool
}

// Decide is the invite acceptance state machine. Membership wins over
// onboarding: an existing member is never sent to onboarding.
func Decide(f Facts) Decision {
	switch {
	case f.AlreadyMember:
		return AlreadyMember
	case !f.Onboarded:
		return DeferToOnboarding
	default:
		return AcceptAndJoin
	}
}

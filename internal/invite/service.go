package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"orgkit-backend/internal/models"
	"orgkit-backend/internal/storage"
)

var ErrNoIdentity = errors.New("invite acceptance requires a user")

// Store is the slice of storage the acceptance flow depends on.
type Store interface {
	GetEmailInviteByToken(ctx context.Context, token string) (*models.EmailInvite, error)
	GetInviteLinkByToken(ctx context.Context, token string) (*models.InviteLink, error)
	IsMember(ctx context.Context, orgID, userID string) (bool, error)
	JoinOrganization(ctx context.Context, req models.JoinRequest) (*models.Membership, bool, error)
}

// Publisher emits organization events. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, subject string, v interface{}) error
}

type Kind string

const (
	KindEmail Kind = "email"
	KindLink  Kind = "link"
)

// CookieName is the cookie that carries invites of this kind.
func (k Kind) CookieName() string {
	if k == KindEmail {
		return EmailCookie
	}
	return LinkCookie
}

// Invite is a database-validated invite, regardless of its kind.
type Invite struct {
	Kind             Kind
	ID               string
	Token            string
	OrganizationID   string
	OrganizationSlug string
	OrganizationName string
	Role             models.Role
	Email            string
	ExpiresAt        time.Time
}

// Pending holds the invite payloads read from the request, if any.
type Pending struct {
	Email *Payload
	Link  *Payload
}

type OutcomeKind string

const (
	OutcomeAlreadyMember OutcomeKind = "alreadyMember"
	OutcomeJoined        OutcomeKind = "joined"
	OutcomeDeferred      OutcomeKind = "deferred"

	// OutcomeInvalid means the invite was used up or revoked after it was
	// resolved.
	OutcomeInvalid OutcomeKind = "invalid"
)

type Outcome struct {
	Kind             OutcomeKind
	Via              Kind
	OrganizationSlug string
	OrganizationName string
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve re-validates the pending payloads against the database. The email
// invite is preferred and only applies to its recipient; when user is nil the
// recipient is not checked. Unknown, expired or revoked tokens yield nil.
func (s *Service) Resolve(ctx context.Context, pending Pending, user *models.User) (*Invite, error) {
	if pending.Email != nil {
		inv, err := s.resolveEmail(ctx, pending.Email.Token, user)
		if err != nil || inv != nil {
			return inv, err
		}
	}

	if pending.Link != nil {
		return s.resolveLink(ctx, pending.Link.Token)
	}

	return nil, nil
}

func (s *Service) resolveEmail(ctx context.Context, token string, user *models.User) (*Invite, error) {
	e, err := s.store.GetEmailInviteByToken(ctx, token)
	if errors.Is(err, storage.ErrInviteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if user != nil && !strings.EqualFold(strings.TrimSpace(e.Email), strings.TrimSpace(user.Email)) {
		s.logger.Info("email invite ignored for non-recipient",
			zap.String("invite_id", e.ID),
			zap.String("user_id", user.ID))
		return nil, nil
	}

	return &Invite{
		Kind:             KindEmail,
		ID:               e.ID,
		Token:            e.Token,
		OrganizationID:   e.OrganizationID,
		OrganizationSlug: e.OrganizationSlug,
		OrganizationName: e.OrganizationName,
		Role:             e.Role,
		Email:            e.Email,
		ExpiresAt:        e.ExpiresAt,
	}, nil
}

func (s *Service) resolveLink(ctx context.Context, token string) (*Invite, error) {
	l, err := s.store.GetInviteLinkByToken(ctx, token)
	if errors.Is(err, storage.ErrInviteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Invite{
		Kind:             KindLink,
		ID:               l.ID,
		Token:            l.Token,
		OrganizationID:   l.OrganizationID,
		OrganizationSlug: l.OrganizationSlug,
		OrganizationName: l.OrganizationName,
		Role:             models.RoleMember,
		ExpiresAt:        l.ExpiresAt,
	}, nil
}

// Accept runs the acceptance state machine for a resolved invite and applies
// the membership write when the user may join now.
func (s *Service) Accept(ctx context.Context, inv *Invite, user *models.User) (Outcome, error) {
	if user == nil {
		return Outcome{}, ErrNoIdentity
	}

	outcome := Outcome{
		Via:              inv.Kind,
		OrganizationSlug: inv.OrganizationSlug,
		OrganizationName: inv.OrganizationName,
	}

	member, err := s.store.IsMember(ctx, inv.OrganizationID, user.ID)
	if err != nil {
		return Outcome{}, err
	}

	switch Decide(Facts{AlreadyMember: member, Onboarded: user.Onboarded()}) {
	case AlreadyMember:
		outcome.Kind = OutcomeAlreadyMember
		return outcome, nil
	case DeferToOnboarding:
		outcome.Kind = OutcomeDeferred
		return outcome, nil
	}

	req := models.JoinRequest{
		OrganizationID: inv.OrganizationID,
		UserID:         user.ID,
		Role:           inv.Role,
	}
	if inv.Kind == KindEmail {
		req.DeactivateEmailInviteID = inv.ID
	}

	m, created, err := s.store.JoinOrganization(ctx, req)
	if errors.Is(err, storage.ErrInviteConsumed) {
		s.logger.Info("email invite consumed before join",
			zap.String("invite_id", inv.ID),
			zap.String("user_id", user.ID))
		outcome.Kind = OutcomeInvalid
		return outcome, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		outcome.Kind = OutcomeAlreadyMember
		return outcome, nil
	}

	outcome.Kind = OutcomeJoined
	s.logger.Info("user joined organization",
		zap.String("organization_id", inv.OrganizationID),
		zap.String("user_id", user.ID),
		zap.String("role", string(m.Role)),
		zap.String("via", string(inv.Kind)))
	s.publishJoined(ctx, inv, user, m.Role)

	return outcome, nil
}

func (s *Service) publishJoined(ctx context.Context, inv *Invite, user *models.User, role models.Role) {
	if s.publisher == nil {
		return
	}

	event := models.MemberJoined{
		V:                1,
		TS:               s.now().UnixMilli(),
		OrganizationID:   inv.OrganizationID,
		OrganizationSlug: inv.OrganizationSlug,
		OrganizationName: inv.OrganizationName,
		UserID:           user.ID,
		UserEmail:        user.Email,
		Role:             string(role),
		Via:              string(inv.Kind),
	}
	if err := s.publisher.Publish(ctx, models.SubjectMemberJoined, event); err != nil {
		s.logger.Warn("failed to publish member joined event",
			zap.String("organization_id", inv.OrganizationID),
			zap.Error(err))
	}
}

package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/models"
	"orgkit-backend/internal/storage"
)

// memStore is an in-memory Store with the same visibility rules as the
// Postgres queries.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*models.User
	orgs        map[string]*models.Organization
	memberships map[string]*models.Membership
	links       map[string]*models.InviteLink
	emails      map[string]*models.EmailInvite
	pingErr     error
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*models.User{},
		orgs:        map[string]*models.Organization{},
		memberships: map[string]*models.Membership{},
		links:       map[string]*models.InviteLink{},
		emails:      map[string]*models.EmailInvite{},
	}
}

func memberKey(orgID, userID string) string { return orgID + "/" + userID }

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) addUser(email, name string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.NewString(), AuthID: "auth-" + email, Email: email, DisplayName: name, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addOrg(slug, name string) *models.Organization {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := &models.Organization{ID: uuid.NewString(), Name: name, Slug: slug, CreatedAt: time.Now()}
	m.orgs[o.ID] = o
	return o
}

func (m *memStore) addMember(orgID, userID string, role models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[memberKey(orgID, userID)] = &models.Membership{
		ID: uuid.NewString(), OrganizationID: orgID, UserID: userID, Role: role, CreatedAt: time.Now(),
	}
}

func (m *memStore) addEmailInvite(org *models.Organization, email string, role models.Role, token string) *models.EmailInvite {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &models.EmailInvite{
		ID: uuid.NewString(), OrganizationID: org.ID, Email: email, Role: role, Token: token,
		ExpiresAt: time.Now().Add(24 * time.Hour), CreatedAt: time.Now(),
	}
	m.emails[e.ID] = e
	return e
}

func (m *memStore) addLink(org *models.Organization, token string, expiresAt time.Time) *models.InviteLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &models.InviteLink{ID: uuid.NewString(), OrganizationID: org.ID, Token: token, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	m.links[l.ID] = l
	return l
}

func (m *memStore) membershipsFor(userID string) []models.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Membership
	for _, ms := range m.memberships {
		if ms.UserID == userID {
			out = append(out, *ms)
		}
	}
	return out
}

func (m *memStore) userByEmail(email string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (m *memStore) UpsertUserFromIdentity(_ context.Context, identity models.Identity) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.AuthID == identity.AuthID {
			u.Email = identity.Email
			copied := *u
			return &copied, nil
		}
	}
	u := &models.User{ID: uuid.NewString(), AuthID: identity.AuthID, Email: identity.Email, DisplayName: identity.Name, CreatedAt: time.Now()}
	m.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) UpdateUserProfile(_ context.Context, id string, input models.UpdateProfileInput) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u.DisplayName = input.DisplayName
	if input.PictureURL != nil {
		u.PictureURL = input.PictureURL
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return storage.ErrUserNotFound
	}
	for key, ms := range m.memberships {
		if ms.UserID != id || ms.Role != models.RoleOwner {
			continue
		}
		sole := true
		for _, other := range m.memberships {
			if other.OrganizationID == ms.OrganizationID && other.UserID != id && other.Role == models.RoleOwner {
				sole = false
			}
		}
		if sole {
			m.deleteOrgLocked(ms.OrganizationID)
		}
		delete(m.memberships, key)
	}
	for key, ms := range m.memberships {
		if ms.UserID == id {
			delete(m.memberships, key)
		}
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) CreateOrganization(_ context.Context, ownerID string, input models.CreateOrganizationInput) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[ownerID]; !ok {
		return nil, storage.ErrUserNotFound
	}
	slug := storage.Slugify(input.Name)
	for _, o := range m.orgs {
		if o.Slug == slug {
			slug += "-" + uuid.NewString()[:6]
		}
	}
	o := &models.Organization{ID: uuid.NewString(), Name: input.Name, Slug: slug, CreatedAt: time.Now()}
	m.orgs[o.ID] = o
	m.memberships[memberKey(o.ID, ownerID)] = &models.Membership{ID: uuid.NewString(), OrganizationID: o.ID, UserID: ownerID, Role: models.RoleOwner}
	copied := *o
	return &copied, nil
}

func (m *memStore) GetOrganizationBySlug(_ context.Context, slug string) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == slug {
			copied := *o
			return &copied, nil
		}
	}
	return nil, storage.ErrOrgNotFound
}

func (m *memStore) ListUserOrganizations(_ context.Context, userID string) ([]models.OrganizationWithRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OrganizationWithRole, 0)
	for _, ms := range m.memberships {
		if ms.UserID == userID && ms.IsActive() {
			out = append(out, models.OrganizationWithRole{Organization: *m.orgs[ms.OrganizationID], Role: ms.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) DeleteOrganization(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[id]; !ok {
		return storage.ErrOrgNotFound
	}
	m.deleteOrgLocked(id)
	return nil
}

func (m *memStore) deleteOrgLocked(id string) {
	delete(m.orgs, id)
	for key, ms := range m.memberships {
		if ms.OrganizationID == id {
			delete(m.memberships, key)
		}
	}
	for key, l := range m.links {
		if l.OrganizationID == id {
			delete(m.links, key)
		}
	}
	for key, e := range m.emails {
		if e.OrganizationID == id {
			delete(m.emails, key)
		}
	}
}

func (m *memStore) GetMembership(_ context.Context, orgID, userID string) (*models.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[memberKey(orgID, userID)]
	if !ok {
		return nil, storage.ErrMembershipNotFound
	}
	copied := *ms
	return &copied, nil
}

func (m *memStore) IsMember(_ context.Context, orgID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[memberKey(orgID, userID)]
	return ok && ms.IsActive(), nil
}

func (m *memStore) JoinOrganization(_ context.Context, req models.JoinRequest) (*models.Membership, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(req.OrganizationID, req.UserID)
	if existing, ok := m.memberships[key]; ok && existing.IsActive() {
		copied := *existing
		return &copied, false, nil
	}
	if req.DeactivateEmailInviteID != "" {
		e, ok := m.emails[req.DeactivateEmailInviteID]
		if !ok || e.DeactivatedAt != nil {
			return nil, false, storage.ErrInviteConsumed
		}
		now := time.Now()
		e.DeactivatedAt = &now
	}
	ms := &models.Membership{ID: uuid.NewString(), OrganizationID: req.OrganizationID, UserID: req.UserID, Role: req.Role, CreatedAt: time.Now()}
	m.memberships[key] = ms
	copied := *ms
	return &copied, true, nil
}

func (m *memStore) withOrg(orgID string, fn func(o *models.Organization)) {
	if o, ok := m.orgs[orgID]; ok {
		fn(o)
	}
}

func (m *memStore) GetInviteLinkByToken(_ context.Context, token string) (*models.InviteLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Token != token || !time.Now().Before(l.ExpiresAt) {
			continue
		}
		if _, ok := m.orgs[l.OrganizationID]; !ok {
			continue
		}
		copied := *l
		m.withOrg(l.OrganizationID, func(o *models.Organization) {
			copied.OrganizationSlug, copied.OrganizationName = o.Slug, o.Name
		})
		return &copied, nil
	}
	return nil, storage.ErrInviteNotFound
}

func (m *memStore) GetEmailInviteByToken(_ context.Context, token string) (*models.EmailInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.emails {
		if e.Token != token || e.DeactivatedAt != nil || !time.Now().Before(e.ExpiresAt) {
			continue
		}
		if _, ok := m.orgs[e.OrganizationID]; !ok {
			continue
		}
		copied := *e
		m.withOrg(e.OrganizationID, func(o *models.Organization) {
			copied.OrganizationSlug, copied.OrganizationName = o.Slug, o.Name
		})
		return &copied, nil
	}
	return nil, storage.ErrInviteNotFound
}

func (m *memStore) CreateInviteLink(_ context.Context, orgID, createdBy string, expiresAt time.Time) (*models.InviteLink, error) {
	token, err := storage.GenerateToken(storage.InviteTokenBytes)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &models.InviteLink{ID: uuid.NewString(), OrganizationID: orgID, Token: token, ExpiresAt: expiresAt, CreatedBy: &createdBy, CreatedAt: time.Now()}
	m.links[l.ID] = l
	copied := *l
	return &copied, nil
}

func (m *memStore) ListInviteLinks(_ context.Context, orgID string) ([]models.InviteLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.InviteLink, 0)
	for _, l := range m.links {
		if l.OrganizationID == orgID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) DeleteInviteLink(_ context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok || l.OrganizationID != orgID {
		return storage.ErrInviteNotFound
	}
	delete(m.links, id)
	return nil
}

func (m *memStore) CreateEmailInvite(_ context.Context, orgID, invitedBy string, input models.CreateEmailInviteInput, expiresAt time.Time) (*models.EmailInvite, error) {
	token, err := storage.GenerateToken(storage.InviteTokenBytes)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &models.EmailInvite{
		ID: uuid.NewString(), OrganizationID: orgID, Email: strings.ToLower(input.Email), Role: input.Role,
		Token: token, ExpiresAt: expiresAt, InvitedBy: &invitedBy, CreatedAt: time.Now(),
	}
	m.emails[e.ID] = e
	copied := *e
	return &copied, nil
}

func (m *memStore) ListEmailInvites(_ context.Context, orgID string) ([]models.EmailInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.EmailInvite, 0)
	for _, e := range m.emails {
		if e.OrganizationID == orgID && e.DeactivatedAt == nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) DeactivateEmailInvite(_ context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok || e.OrganizationID != orgID || e.DeactivatedAt != nil {
		return storage.ErrInviteNotFound
	}
	now := time.Now()
	e.DeactivatedAt = &now
	return nil
}

// fakeProvider accepts the codes and token hashes it was seeded with.
type fakeProvider struct {
	identities map[string]models.Identity
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (models.Identity, error) {
	if id, ok := p.identities[code]; ok {
		return id, nil
	}
	return models.Identity{}, auth.ErrInvalidGrant
}

func (p *fakeProvider) VerifyOTP(_ context.Context, tokenHash, _ string) (models.Identity, error) {
	return p.ExchangeCode(context.Background(), tokenHash)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v)
	return nil
}

package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/security"
	"github.com/arklim/admin-iam/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// memKV is an in-memory port.KeyValueStore.
type memKV struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	delErr  error
	deletes [][]string
}

func newMemKV() *memKV {
	return &memKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	m.deletes = append(m.deletes, keys)
	for _, k := range keys {
		delete(m.values, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *memKV) SetIfNotExists(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

// rbacData backs the role, permission and api permission stubs.
type rbacData struct {
	mu          sync.Mutex
	nextID      int64
	roles       map[int64]domain.Role
	perms       map[int64]domain.Permission
	apis        map[int64]domain.APIPermission
	rolePerms   map[int64][]int64
	roleAPIs    map[int64][]int64
	grantLoads  map[int64]int
	getErr      error
	createErr   error
	beforeGrant func(roleID int64)
	// afterGrant runs once a grant load has taken its snapshot.
	afterGrant func(roleID int64)
}

func newRBACData() *rbacData {
	return &rbacData{
		roles:      map[int64]domain.Role{},
		perms:      map[int64]domain.Permission{},
		apis:       map[int64]domain.APIPermission{},
		rolePerms:  map[int64][]int64{},
		roleAPIs:   map[int64][]int64{},
		grantLoads: map[int64]int{},
	}
}

func (d *rbacData) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *rbacData) addPermission(name string) domain.Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := domain.Permission{ID: d.id(), Name: name}
	d.perms[p.ID] = p
	return p
}

func (d *rbacData) addAPI(method, path string, match domain.MatchType) domain.APIPermission {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := domain.APIPermission{ID: d.id(), Method: method, Path: path, MatchType: match}
	d.apis[p.ID] = p
	return p
}

func (d *rbacData) addRole(name string, permIDs, apiIDs []int64) domain.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := domain.Role{ID: d.id(), Name: name}
	d.roles[r.ID] = r
	d.rolePerms[r.ID] = permIDs
	d.roleAPIs[r.ID] = apiIDs
	return r
}

func (d *rbacData) loads(roleID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grantLoads[roleID]
}

type roleRepoStub struct{ d *rbacData }

func (s roleRepoStub) Create(_ context.Context, role domain.Role) (*domain.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.d.createErr != nil {
		return nil, s.d.createErr
	}
	for _, r := range s.d.roles {
		if r.Name == role.Name {
			return nil, repository.ErrConflict
		}
	}
	role.ID = s.d.id()
	s.d.roles[role.ID] = domain.Role{ID: role.ID, Name: role.Name, Description: role.Description, IsSystem: role.IsSystem}
	s.d.rolePerms[role.ID] = append([]int64(nil), role.PermissionIDs...)
	s.d.roleAPIs[role.ID] = append([]int64(nil), role.APIPermissionIDs...)
	return &role, nil
}

func (s roleRepoStub) List(context.Context) ([]domain.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	out := make([]domain.Role, 0, len(s.d.roles))
	for _, r := range s.d.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s roleRepoStub) GetByID(_ context.Context, id int64, includeGrants bool) (*domain.Role, error) {
	if includeGrants && s.d.beforeGrant != nil {
		s.d.beforeGrant(id)
	}
	role, err := s.snapshot(id, includeGrants)
	if err == nil && includeGrants && s.d.afterGrant != nil {
		s.d.afterGrant(id)
	}
	return role, err
}

func (s roleRepoStub) snapshot(id int64, includeGrants bool) (*domain.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.d.getErr != nil {
		return nil, s.d.getErr
	}
	r, ok := s.d.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if includeGrants {
		s.d.grantLoads[id]++
		r.PermissionIDs = append([]int64(nil), s.d.rolePerms[id]...)
		r.APIPermissionIDs = append([]int64(nil), s.d.roleAPIs[id]...)
		for _, pid := range r.PermissionIDs {
			r.Permissions = append(r.Permissions, s.d.perms[pid])
		}
		for _, aid := range r.APIPermissionIDs {
			r.APIPermissions = append(r.APIPermissions, s.d.apis[aid])
		}
	}
	return &r, nil
}

func (s roleRepoStub) GetByName(_ context.Context, name string) (*domain.Role, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, r := range s.d.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s roleRepoStub) Update(_ context.Context, role domain.Role) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	existing, ok := s.d.roles[role.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = role.Name
	existing.Description = role.Description
	s.d.roles[role.ID] = existing
	return nil
}

func (s roleRepoStub) Delete(_ context.Context, id int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.d.roles, id)
	delete(s.d.rolePerms, id)
	delete(s.d.roleAPIs, id)
	return nil
}

func (s roleRepoStub) ReplacePermissions(_ context.Context, roleID int64, ids []int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.roles[roleID]; !ok {
		return repository.ErrNotFound
	}
	s.d.rolePerms[roleID] = append([]int64(nil), ids...)
	return nil
}

func (s roleRepoStub) ReplaceAPIPermissions(_ context.Context, roleID int64, ids []int64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.roles[roleID]; !ok {
		return repository.ErrNotFound
	}
	s.d.roleAPIs[roleID] = append([]int64(nil), ids...)
	return nil
}

func (s roleRepoStub) ListIDsByPermission(_ context.Context, permissionID int64) ([]int64, error) {
	return s.holders(s.d.rolePerms, permissionID), nil
}

func (s roleRepoStub) ListIDsByAPIPermission(_ context.Context, apiPermissionID int64) ([]int64, error) {
	return s.holders(s.d.roleAPIs, apiPermissionID), nil
}

func (s roleRepoStub) holders(links map[int64][]int64, target int64) []int64 {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []int64
	for roleID, ids := range links {
		if containsID(ids, target) {
			out = append(out, roleID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type permRepoStub struct{ d *rbacData }

func (s permRepoStub) Create(_ context.Context, p domain.Permission) (*domain.Permission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.perms {
		if existing.Name == p.Name {
			return nil, repository.ErrConflict
		}
	}
	p.ID = s.d.id()
	s.d.perms[p.ID] = p
	return &p, nil
}

func (s permRepoStub) List(context.Context) ([]domain.Permission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	out := make([]domain.Permission, 0, len(s.d.perms))
	for _, p := range s.d.perms {
		out = append(out, p)
	}
	return out, nil
}

func (s permRepoStub) GetByID(_ context.Context, id int64) (*domain.Permission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.perms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s permRepoStub) GetByName(_ context.Context, name string) (*domain.Permission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, p := range s.d.perms {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s permRepoStub) ListByIDs(_ context.Context, ids []int64) ([]domain.Permission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.Permission
	for _, id := range ids {
		if p, ok := s.d.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s permRepoStub) Delete(_ context.Context, id int64) ([]int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.perms[id]; !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.d.perms, id)
	var holders []int64
	for roleID, ids := range s.d.rolePerms {
		kept := without(ids, id)
		if len(kept) != len(ids) {
			holders = append(holders, roleID)
		}
		s.d.rolePerms[roleID] = kept
	}
	return holders, nil
}

type apiRepoStub struct{ d *rbacData }

func (s apiRepoStub) Create(_ context.Context, p domain.APIPermission) (*domain.APIPermission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, existing := range s.d.apis {
		if existing.Method == p.Method && existing.Path == p.Path {
			return nil, repository.ErrConflict
		}
	}
	p.ID = s.d.id()
	s.d.apis[p.ID] = p
	return &p, nil
}

func (s apiRepoStub) Upsert(ctx context.Context, p domain.APIPermission) (bool, error) {
	_, err := s.Create(ctx, p)
	if err == repository.ErrConflict {
		return false, nil
	}
	return err == nil, err
}

func (s apiRepoStub) List(context.Context) ([]domain.APIPermission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	out := make([]domain.APIPermission, 0, len(s.d.apis))
	for _, p := range s.d.apis {
		out = append(out, p)
	}
	return out, nil
}

func (s apiRepoStub) GetByID(_ context.Context, id int64) (*domain.APIPermission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	p, ok := s.d.apis[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s apiRepoStub) ListByIDs(_ context.Context, ids []int64) ([]domain.APIPermission, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.APIPermission
	for _, id := range ids {
		if p, ok := s.d.apis[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s apiRepoStub) Update(_ context.Context, p domain.APIPermission) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.apis[p.ID]; !ok {
		return repository.ErrNotFound
	}
	s.d.apis[p.ID] = p
	return nil
}

func (s apiRepoStub) Delete(_ context.Context, id int64) ([]int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.apis[id]; !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.d.apis, id)
	var holders []int64
	for roleID, ids := range s.d.roleAPIs {
		kept := without(ids, id)
		if len(kept) != len(ids) {
			holders = append(holders, roleID)
		}
		s.d.roleAPIs[roleID] = kept
	}
	return holders, nil
}

func without(ids []int64, drop int64) []int64 {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// userRepoStub is an in-memory port.UserRepository.
type userRepoStub struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]domain.Principal
	identities map[string]int64
	createErr  error
	getErr     error
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: map[int64]domain.Principal{}, identities: map[string]int64{}}
}

func (s *userRepoStub) Create(_ context.Context, p domain.Principal) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(p)
}

func (s *userRepoStub) insert(p domain.Principal) (*domain.Principal, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	for _, u := range s.users {
		if u.Username == p.Username {
			return nil, repository.ErrConflict
		}
	}
	s.nextID++
	p.ID = s.nextID
	s.users[p.ID] = p
	return &p, nil
}

func (s *userRepoStub) CreateExternal(_ context.Context, p domain.Principal, provider, subject string) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := provider + "/" + subject
	if _, ok := s.identities[key]; ok {
		return nil, repository.ErrConflict
	}
	created, err := s.insert(p)
	if err != nil {
		return nil, err
	}
	s.identities[key] = created.ID
	return created, nil
}

func (s *userRepoStub) GetByExternalIdentity(_ context.Context, provider, subject string) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	id, ok := s.identities[provider+"/"+subject]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *userRepoStub) GetByID(_ context.Context, id int64) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *userRepoStub) GetByUsername(_ context.Context, username string) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, p := range s.users {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) List(context.Context) ([]domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Principal, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, p)
	}
	return out, nil
}

func (s *userRepoStub) UpdatePassword(_ context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.PasswordHash = hash
	s.users[id] = p
	return nil
}

func (s *userRepoStub) ReplaceRoles(_ context.Context, id int64, roleIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.RoleIDs = append([]int64(nil), roleIDs...)
	s.users[id] = p
	return nil
}

func (s *userRepoStub) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.PrincipalRegisteredEvent
	changed    []domain.RoleGrantsChangedEvent
	reused     []domain.TokenReuseDetectedEvent
}

func (p *recordingPublisher) PublishPrincipalRegistered(_ context.Context, e domain.PrincipalRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, e)
	return nil
}

func (p *recordingPublisher) PublishRoleGrantsChanged(_ context.Context, e domain.RoleGrantsChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

func (p *recordingPublisher) PublishTokenReuseDetected(_ context.Context, e domain.TokenReuseDetectedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reused = append(p.reused, e)
	return nil
}

func (p *recordingPublisher) reuseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reused)
}

var (
	_ port.KeyValueStore           = (*memKV)(nil)
	_ port.RoleRepository          = roleRepoStub{}
	_ port.PermissionRepository    = permRepoStub{}
	_ port.APIPermissionRepository = apiRepoStub{}
	_ port.UserRepository          = (*userRepoStub)(nil)
	_ port.EventPublisher          = (*recordingPublisher)(nil)
)

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	hasher, err := security.NewPasswordHasher(port.Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	return hasher
}

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	signer, err := security.NewJWTManager(testSecret, "admin-iam")
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	return NewTokenService(signer, 30*time.Minute, 7*24*time.Hour)
}

// fixture wires the usecase layer over in-memory collaborators.
type fixture struct {
	kv       *memKV
	rbac     *rbacData
	users    *userRepoStub
	events   *recordingPublisher
	cache    *PermissionCache
	resolver *PermissionResolver
	decider  *AccessDecider
	tokens   *TokenService
	guard    *RefreshGuard
	verifier *CredentialVerifier
	auth     *AuthService
	roles    *RoleService
	perms    *PermissionService
	apis     *APIPermissionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	f := &fixture{
		kv:     newMemKV(),
		rbac:   newRBACData(),
		users:  newUserRepoStub(),
		events: &recordingPublisher{},
	}
	roles := roleRepoStub{f.rbac}
	f.cache = NewPermissionCache(f.kv, "rbac:role", nil)
	f.resolver = NewPermissionResolver(roles, f.cache, log)
	f.decider = NewAccessDecider(nil)
	f.tokens = newTestTokenService(t)
	f.guard = NewRefreshGuard(f.tokens, f.kv, f.users, f.events, nil, log, "auth:refresh:used")

	verifier, err := NewCredentialVerifier(f.users, roles, newTestHasher(t), f.events, log, CredentialVerifierConfig{
		HashConcurrency: 2,
		DefaultRole:     "general_user",
	})
	if err != nil {
		t.Fatalf("NewCredentialVerifier returned error: %v", err)
	}
	f.verifier = verifier
	f.auth = NewAuthService(f.verifier, f.tokens, f.guard, f.resolver, f.users, nil, log)
	f.roles = NewRoleService(roles, permRepoStub{f.rbac}, apiRepoStub{f.rbac}, f.cache, f.events, log)
	f.perms = NewPermissionService(permRepoStub{f.rbac}, roles, f.cache, f.events, log)
	f.apis = NewAPIPermissionService(apiRepoStub{f.rbac}, roles, f.cache, f.events, log)
	return f
}

func (f *fixture) addUser(t *testing.T, username, password string, roleIDs ...int64) domain.Principal {
	t.Helper()
	hash, err := newTestHasher(t).Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p, err := f.users.Create(context.Background(), domain.Principal{Username: username, PasswordHash: hash, RoleIDs: roleIDs})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return *p
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"chatgate/internal/app/chat"
	"chatgate/internal/app/db"
	"chatgate/internal/app/user"
	"chatgate/internal/configs"
	"chatgate/internal/pkg/auth/cookie"
	"chatgate/internal/pkg/auth/jwt"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/metrics"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memUsers is an in-memory UserStore and session.UserLookup.
type memUsers struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]db.Credentials
	byID    map[int64]user.Identity
}

func newMemUsers() *memUsers {
	return &memUsers{
		byEmail: make(map[string]db.Credentials),
		byID:    make(map[int64]user.Identity),
	}
}

func (u *memUsers) CreateEmailUser(_ context.Context, in db.NewEmailUser) (user.Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byEmail[in.Email]; ok {
		return user.Identity{}, errs.NewError(errs.ErrUserAlreadyExists)
	}
	u.nextID++
	id := user.Identity{
		ID:           u.nextID,
		Username:     in.Username,
		Email:        in.Email,
		Role:         user.RoleUser,
		Status:       user.StatusActive,
		ProviderType: user.ProviderEmail,
	}
	u.byEmail[in.Email] = db.Credentials{Identity: id, PasswordHash: in.PasswordHash}
	u.byID[id.ID] = id
	return id, nil
}

func (u *memUsers) GetCredentialsByEmail(_ context.Context, email string) (db.Credentials, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.byEmail[email]
	if !ok {
		return db.Credentials{}, errs.NewError(errs.ErrUserNotFound)
	}
	c.Identity = u.byID[c.Identity.ID]
	return c, nil
}

func (u *memUsers) GetIdentity(_ context.Context, id int64) (user.Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	identity, ok := u.byID[id]
	if !ok {
		return user.Identity{}, errs.NewError(errs.ErrUserNotFound)
	}
	return identity, nil
}

func (u *memUsers) SearchUsers(_ context.Context, query string, excludeID int64, limit int) ([]user.Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	query = strings.ToLower(query)
	var out []user.Identity
	for _, id := range u.sorted() {
		if id.ID == excludeID || !id.IsActive() {
			continue
		}
		if strings.Contains(strings.ToLower(id.Username), query) || strings.Contains(id.Email, query) {
			out = append(out, id)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (u *memUsers) ListUsers(_ context.Context, page, limit int) ([]user.Identity, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	all := u.sorted()
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return all[start:end], end < len(all), nil
}

// sorted returns every identity by id. Callers hold u.mu.
func (u *memUsers) sorted() []user.Identity {
	out := make([]user.Identity, 0, len(u.byID))
	for _, id := range u.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (u *memUsers) username(id int64) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byID[id].Username
}

func (u *memUsers) setRole(id int64, role user.Role) {
	u.mu.Lock()
	defer u.mu.Unlock()
	identity := u.byID[id]
	identity.Role = role
	u.byID[id] = identity
}

func (u *memUsers) setStatus(id int64, status user.Status) {
	u.mu.Lock()
	defer u.mu.Unlock()
	identity := u.byID[id]
	identity.Status = status
	u.byID[id] = identity
}

// memRooms is an in-memory RoomStore and chat.Store.
type memRooms struct {
	users *memUsers

	mu       sync.Mutex
	nextRoom int64
	nextMsg  int64
	rooms    map[int64]chat.Room
	members  map[int64]map[int64]chat.MemberRole
	messages []chat.Message
}

func newMemRooms(users *memUsers) *memRooms {
	return &memRooms{
		users:   users,
		rooms:   make(map[int64]chat.Room),
		members: make(map[int64]map[int64]chat.MemberRole),
	}
}

func (s *memRooms) CreateRoom(_ context.Context, nr chat.NewRoom) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRoom++
	room := chat.Room{
		ID:          s.nextRoom,
		Name:        nr.Name,
		Description: nr.Description,
		RoomType:    nr.RoomType,
		CreatedBy:   nr.CreatedBy,
		CreatedAt:   time.Now(),
	}
	s.rooms[room.ID] = room
	s.members[room.ID] = map[int64]chat.MemberRole{nr.CreatedBy: chat.MemberAdmin}
	for _, id := range nr.MemberIDs {
		s.members[room.ID][id] = chat.MemberMember
	}
	return room, nil
}

func (s *memRooms) ListRooms(_ context.Context, userID int64) ([]chat.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []chat.RoomSummary{}
	for id, members := range s.members {
		if role, ok := members[userID]; ok {
			out = append(out, chat.RoomSummary{Room: s.rooms[id], MemberRole: role})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memRooms) JoinRoom(_ context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.members[roomID]
	if !ok {
		return errs.NewError(errs.ErrRoomNotFound)
	}
	if _, ok := members[userID]; ok {
		return errs.NewError(errs.ErrAlreadyRoomMember)
	}
	if s.rooms[roomID].RoomType != chat.RoomGroup {
		return errs.NewError(errs.ErrRoomNotFound)
	}
	members[userID] = chat.MemberMember
	return nil
}

func (s *memRooms) GetRoom(_ context.Context, roomID int64) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return chat.Room{}, errs.NewError(errs.ErrRoomNotFound)
	}
	return room, nil
}

func (s *memRooms) ListRoomMembers(_ context.Context, roomID int64) ([]chat.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Member, 0, len(s.members[roomID]))
	for id, role := range s.members[roomID] {
		out = append(out, chat.Member{UserID: id, Username: s.users.username(id), Role: role})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role == chat.MemberAdmin
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *memRooms) IsMember(_ context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[roomID][userID]
	return ok, nil
}

func (s *memRooms) ListMemberRooms(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, members := range s.members {
		if _, ok := members[userID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memRooms) GetMessage(_ context.Context, id int64) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return chat.Message{}, errs.NewError(errs.ErrMessageNotFound)
}

func (s *memRooms) CreateMessage(_ context.Context, nm chat.NewMessage) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	m := chat.Message{
		ID:        s.nextMsg,
		RoomID:    nm.RoomID,
		SenderID:  nm.SenderID,
		Content:   nm.Content,
		Type:      nm.Type,
		ReplyToID: nm.ReplyToID,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *memRooms) TouchRoom(context.Context, int64, time.Time) error { return nil }

func (s *memRooms) MarkRead(_ context.Context, roomID, userID int64, _ time.Time) (bool, error) {
	return s.IsMember(context.Background(), roomID, userID)
}

func (s *memRooms) RecentMessages(ctx context.Context, roomID int64, limit int) ([]chat.Message, error) {
	msgs, _, err := s.ListMessages(ctx, roomID, 1, limit)
	return msgs, err
}

func (s *memRooms) ListMessages(_ context.Context, roomID int64, page, limit int) ([]chat.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inRoom []chat.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			inRoom = append(inRoom, m)
		}
	}
	end := len(inRoom) - (page-1)*limit
	if end <= 0 {
		return nil, false, nil
	}
	start := max(end-limit, 0)
	return inRoom[start:end], start > 0, nil
}

func (s *memRooms) addMessages(roomID, senderID int64, n int) {
	for range n {
		_, _ = s.CreateMessage(context.Background(), chat.NewMessage{RoomID: roomID, SenderID: senderID, Content: "hi", Type: chat.MessageText})
	}
}

type fakeStorage struct{}

func (fakeStorage) PresignUpload(_ context.Context, key, _ string, _ int64, _ time.Duration) (string, error) {
	return "https://bucket.test/" + key + "?sig=up", nil
}

func (fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.test/" + key + "?sig=down", nil
}

type testEnv struct {
	clk     *clock
	users   *memUsers
	rooms   *memRooms
	gateway *chat.Gateway
	server  *httptest.Server
	client  *http.Client

	// Requests come from a fresh address each unless fixedIP is set,
	// keeping the per-IP limiters out of unrelated tests.
	ipSeq   atomic.Int64
	fixedIP string
}

func (env *testEnv) clientIP() string {
	if env.fixedIP != "" {
		return env.fixedIP
	}
	n := env.ipSeq.Add(1)
	return fmt.Sprintf("10.%d.%d.%d", (n>>16)&0xff, (n>>8)&0xff, n&0xff)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUsers()
	env := &testEnv{
		clk:   &clock{t: time.Now()},
		users: users,
		rooms: newMemRooms(users),
	}

	codec := jwt.NewCodec(jwt.Config{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     2 * time.Hour,
		RefreshTTL:    168 * time.Hour,
	}, jwt.WithClock(env.clk.now))
	store := cookie.NewStore(codec, []byte("0123456789abcdef0123456789abcdef"), cookie.Options{})
	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewManager(store, env.users, session.NewMemoryRevocations(), codec,
		session.Config{RefreshThreshold: 5 * time.Minute}, m)

	env.gateway = chat.NewGateway(env.rooms, chat.DefaultConfig(), m)

	ctx, cancel := context.WithCancel(context.Background())
	deps := &AppDeps{
		Config:   &configs.AppConfig{Environment: configs.EnvDevelopment},
		Sessions: sessions,
		Users:    env.users,
		Rooms:    env.rooms,
		Gateway:  env.gateway,
		Storage:  fakeStorage{},
		Metrics:  m,

		// Buckets refill slowly enough that bcrypt latency never hands out an extra token.
		Limits: &RateLimits{
			Auth:      Limit{Rate: rate.Every(time.Hour), Burst: AuthBurst},
			Create:    Limit{Rate: rate.Every(time.Hour), Burst: CreateBurst},
			Handshake: Limit{Rate: rate.Every(time.Hour), Burst: HandshakeBurst},
		},
	}
	env.server = httptest.NewServer(Router(ctx, deps))
	env.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = env.gateway.Shutdown(shutdownCtx)
		env.server.Close()
		cancel()
	})
	return env
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a request carrying cookies and decodes the envelope.
func (env *testEnv) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) (*http.Response, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r, err := http.NewRequest(method, env.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("X-Real-IP", env.clientIP())
	for _, c := range cookies {
		r.AddCookie(c)
	}

	res, err := env.client.Do(r)
	require.NoError(t, err)
	defer res.Body.Close()

	var out envelope
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res, out
}

// register creates an account and returns the cookies of its session.
func (env *testEnv) register(t *testing.T, name string) []*http.Cookie {
	t.Helper()
	res, out := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "Passw0rdX",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, out.Message)
	return liveCookies(res)
}

// login signs an existing account in and returns the cookies of its session.
func (env *testEnv) login(t *testing.T, name string, rememberMe bool) []*http.Cookie {
	t.Helper()
	res, out := env.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":      name + "@example.com",
		"password":   "Passw0rdX",
		"rememberMe": rememberMe,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, out.Message)
	return liveCookies(res)
}

// liveCookies returns the cookies res sets, skipping deletions.
func liveCookies(res *http.Response) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range res.Cookies() {
		if c.MaxAge >= 0 {
			out = append(out, c)
		}
	}
	return out
}

func clearedCookies(res *http.Response) []string {
	var names []string
	for _, c := range res.Cookies() {
		if c.MaxAge < 0 {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// merge overlays updated on base by cookie name.
func merge(base, updated []*http.Cookie) []*http.Cookie {
	byName := make(map[string]*http.Cookie)
	for _, c := range base {
		byName[c.Name] = c
	}
	for _, c := range updated {
		byName[c.Name] = c
	}
	out := make([]*http.Cookie, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	return out
}

package usecase_test

import (
	"bytes"
	"context"
	"html"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/repository"
)

// ---- in-memory credential store ----

// memStore backs UserRepository, SessionRepository and DeviceRepository with
// maps behind one mutex, mirroring the transactional guarantees of postgres.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*domain.User
	sessions map[int64]*domain.Session
	devices  map[int64]*domain.Device
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*domain.User{},
		sessions: map[int64]*domain.Session{},
		devices:  map[int64]*domain.Device{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	return &c
}

type memUsers struct{ *memStore }
type memSessions struct{ *memStore }
type memDevices struct{ *memStore }

var (
	_ repository.UserRepository    = memUsers{}
	_ repository.SessionRepository = memSessions{}
	_ repository.DeviceRepository  = memDevices{}
)

func (m memUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m memUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Email == email })
}

func (m memUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m memUsers) Create(_ context.Context, u *domain.User, s *domain.Session) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	created := cloneUser(u)
	created.ID = m.id()
	created.CreatedAt = time.Now()
	m.users[created.ID] = created
	if s != nil {
		ns := cloneSession(s)
		ns.ID = m.id()
		ns.UserID = created.ID
		m.sessions[ns.ID] = ns
	}
	return cloneUser(created), nil
}

func (m memUsers) RecordLogin(_ context.Context, userID int64, hash []byte, at time.Time, s *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !bytes.Equal(u.PasswordHash, hash) {
		return nil, domain.ErrUserNotFound
	}
	u.LastLoginAt = &at
	ns := cloneSession(s)
	ns.ID = m.id()
	ns.UserID = userID
	m.sessions[ns.ID] = ns
	return cloneSession(ns), nil
}

func (m memUsers) ConsumeVerificationToken(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.EmailVerificationToken != nil && *u.EmailVerificationToken == token {
			u.IsEmailVerified = true
			u.EmailVerificationToken = nil
			return true, nil
		}
	}
	return false, nil
}

func (m memUsers) SetPasswordResetToken(_ context.Context, userID int64, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordResetToken = &token
	u.PasswordResetExpires = &expires
	return nil
}

func (m memUsers) ConsumePasswordResetToken(_ context.Context, token string, now time.Time, hash, salt []byte) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == token &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			u.PasswordHash = hash
			u.PasswordSalt = salt
			u.PasswordResetToken = nil
			u.PasswordResetExpires = nil
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// edit runs fn on the stored user under the store lock.
func (m memUsers) edit(id int64, fn func(*domain.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		fn(u)
	}
}

func (m memUsers) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.PasswordResetExpires != nil && !u.PasswordResetExpires.After(now) {
			u.PasswordResetToken = nil
			u.PasswordResetExpires = nil
			n++
		}
	}
	return n, nil
}

func (m memSessions) GetActiveByRefreshToken(_ context.Context, token string, now time.Time) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == token && s.Active(now) {
			return cloneSession(s), nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (m memSessions) GetByUserAndToken(_ context.Context, userID int64, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RefreshToken == token {
			return cloneSession(s), nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (m memSessions) Create(_ context.Context, s *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := cloneSession(s)
	ns.ID = m.id()
	m.sessions[ns.ID] = ns
	return cloneSession(ns), nil
}

func (m memSessions) Update(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m memSessions) Rotate(_ context.Context, token string, now time.Time, next *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken != token || !s.Active(now) {
			continue
		}
		revoked := now
		s.RevokedAt = &revoked
		ns := cloneSession(next)
		ns.ID = m.id()
		ns.UserID = s.UserID
		m.sessions[ns.ID] = ns
		return cloneSession(ns), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m memSessions) RevokeAllForUser(_ context.Context, userID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active(now) {
			revoked := now
			s.RevokedAt = &revoked
			n++
		}
	}
	return n, nil
}

func (m memSessions) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// edit runs fn on the stored session holding token under the store lock.
func (m memSessions) edit(token string, fn func(*domain.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == token {
			fn(s)
		}
	}
}

func (m memSessions) activeFor(userID int64, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active(now) {
			n++
		}
	}
	return n
}

func (m memDevices) Get(_ context.Context, userID int64, token string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.UserID == userID && d.DeviceToken == token {
			c := *d
			return &c, nil
		}
	}
	return nil, domain.ErrDeviceNotFound
}

func (m memDevices) Create(_ context.Context, d *domain.Device) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	c.ID = m.id()
	m.devices[c.ID] = &c
	out := c
	return &out, nil
}

func (m memDevices) Update(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return domain.ErrDeviceNotFound
	}
	c := *d
	m.devices[d.ID] = &c
	return nil
}

func (m memDevices) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

// ---- email ----

type sentEmail struct {
	to, subject, body string
	kind              email.Kind
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *recordingSender) Send(_ context.Context, to string, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{to: to, subject: msg.Subject, body: msg.Body, kind: msg.Kind})
	return s.err
}

func (s *recordingSender) last() (sentEmail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentEmail{}, false
	}
	return s.sent[len(s.sent)-1], true
}

// tokenFromBody pulls the ?token= value out of a rendered link.
func tokenFromBody(body string) string {
	body = html.UnescapeString(body)
	idx := strings.Index(body, "?token=")
	if idx == -1 {
		return ""
	}
	raw := strings.SplitN(body[idx+len("?token="):], `"`, 2)[0]
	tok, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	return tok
}

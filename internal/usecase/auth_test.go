package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/ErlanBelekov/voice-scheduler/internal/email"
	"github.com/ErlanBelekov/voice-scheduler/internal/token"
	"github.com/ErlanBelekov/voice-scheduler/internal/usecase"
)

// ---- helpers ----

const (
	testJWTKey  = "test-jwt-secret-at-least-32-chars!!"
	testBaseURL = "http://localhost:8080"
	testEmail   = "dana@example.com"
	testPass    = "correct horse battery staple"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type authFixture struct {
	store  *memStore
	tokens *token.Service
	mail   *recordingSender
	uc     *usecase.AuthUsecase
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	tokens, err := token.NewService([]byte(testJWTKey), "voice-scheduler", "voice-scheduler-app")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	store := newMemStore()
	mail := &recordingSender{}
	return &authFixture{
		store:  store,
		tokens: tokens,
		mail:   mail,
		uc: usecase.NewAuthUsecase(
			memUsers{store}, memSessions{store}, memDevices{store},
			tokens, mail, testBaseURL, discard,
		),
	}
}

func (f *authFixture) register(t *testing.T) *domain.TokenPair {
	t.Helper()
	pair, err := f.uc.Register(context.Background(), usecase.RegisterInput{Email: testEmail, Password: testPass})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return pair
}

func (f *authFixture) userID(t *testing.T, pair *domain.TokenPair) int64 {
	t.Helper()
	claims, err := f.tokens.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	return id
}

// brokenUsers fails the first lookup of every flow.
type brokenUsers struct {
	memUsers
	err error
}

func (b brokenUsers) ExistsByEmail(context.Context, string) (bool, error) { return false, b.err }
func (b brokenUsers) FindByEmail(context.Context, string) (*domain.User, error) {
	return nil, b.err
}

// ---- Register ----

func TestRegister_IssuesTokensAndOpensSession(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.register(t)

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty token pair: %+v", pair)
	}
	id := f.userID(t, pair)

	claims, _ := f.tokens.ValidateAccessToken(pair.AccessToken)
	if claims.Subject != strconv.FormatInt(id, 10) || claims.Email != testEmail {
		t.Errorf("claims = %+v", claims)
	}
	if claims.IsEmailVerified {
		t.Error("new user must not be verified")
	}
	if n := (memSessions{f.store}).activeFor(id, time.Now()); n != 1 {
		t.Errorf("active sessions = %d, want 1", n)
	}
}

func TestRegister_SendsVerificationLinkThatVerifies(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	msg, ok := f.mail.last()
	if !ok {
		t.Fatal("no email sent")
	}
	if msg.to != testEmail || msg.kind != email.KindVerification {
		t.Errorf("sent %s email to %q", msg.kind, msg.to)
	}
	tok := tokenFromBody(msg.body)
	if tok == "" {
		t.Fatalf("no token in body %q", msg.body)
	}

	verified, err := f.uc.VerifyEmail(context.Background(), tok)
	if err != nil || !verified {
		t.Fatalf("VerifyEmail = %v, %v", verified, err)
	}

	u, _ := memUsers{f.store}.FindByEmail(context.Background(), testEmail)
	if !u.IsEmailVerified || u.EmailVerificationToken != nil {
		t.Errorf("user not marked verified: %+v", u)
	}

	again, err := f.uc.VerifyEmail(context.Background(), tok)
	if err != nil || again {
		t.Errorf("second VerifyEmail = %v, %v; want false, nil", again, err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	_, err := f.uc.Register(context.Background(), usecase.RegisterInput{Email: testEmail, Password: "other"})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Errorf("want ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_StoreError_IsRegistrationFailed(t *testing.T) {
	f := newAuthFixture(t)
	dbErr := errors.New("db down")
	uc := usecase.NewAuthUsecase(
		brokenUsers{memUsers{f.store}, dbErr}, memSessions{f.store}, memDevices{f.store},
		f.tokens, f.mail, testBaseURL, discard,
	)

	_, err := uc.Register(context.Background(), usecase.RegisterInput{Email: testEmail, Password: testPass})
	if !errors.Is(err, domain.ErrRegistrationFailed) || !errors.Is(err, dbErr) {
		t.Errorf("want ErrRegistrationFailed wrapping dbErr, got %v", err)
	}
}

func TestRegister_EmailFailureDoesNotFail(t *testing.T) {
	f := newAuthFixture(t)
	f.mail.err = errors.New("smtp unavailable")

	if _, err := f.uc.Register(context.Background(), usecase.RegisterInput{Email: testEmail, Password: testPass}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---- Login ----

func TestLogin_WrongPasswordAndUnknownEmailLookTheSame(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	_, errWrong := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: "nope"})
	_, errUnknown := f.uc.Login(context.Background(), usecase.LoginInput{Email: "ghost@example.com", Password: testPass})

	if !errors.Is(errWrong, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", errWrong)
	}
	if !errors.Is(errUnknown, domain.ErrInvalidCredentials) {
		t.Errorf("unknown email: %v", errUnknown)
	}
}

func TestLogin_OpensSessionAndRecordsLastLogin(t *testing.T) {
	f := newAuthFixture(t)
	id := f.userID(t, f.register(t))

	res, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: testPass})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.UserID != id {
		t.Errorf("UserID = %d, want %d", res.UserID, id)
	}
	if n := (memSessions{f.store}).activeFor(id, time.Now()); n != 2 {
		t.Errorf("active sessions = %d, want 2", n)
	}
	u, _ := memUsers{f.store}.FindByID(context.Background(), id)
	if u.LastLoginAt == nil {
		t.Error("LastLoginAt not set")
	}
	if got := (memDevices{f.store}).count(); got != 0 {
		t.Errorf("devices = %d without device info, want 0", got)
	}
}

func TestLogin_UpsertsDevice(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)
	in := usecase.LoginInput{Email: testEmail, Password: testPass, DeviceToken: "apns-123", Platform: "ios"}

	for i := 0; i < 2; i++ {
		if _, err := f.uc.Login(context.Background(), in); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	if got := (memDevices{f.store}).count(); got != 1 {
		t.Errorf("devices = %d, want 1", got)
	}

	if _, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: testPass, DeviceToken: "other"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := (memDevices{f.store}).count(); got != 1 {
		t.Errorf("device recorded without platform: %d", got)
	}
}

// ---- Refresh ----

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t)

	second, err := f.uc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if f.userID(t, second) != f.userID(t, first) {
		t.Error("rotated pair belongs to a different user")
	}

	if _, err := f.uc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Errorf("reusing old token: want ErrInvalidOrExpiredToken, got %v", err)
	}
	if _, err := f.uc.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Errorf("new token rejected: %v", err)
	}
}

func TestRefresh_UnknownOrEmptyToken(t *testing.T) {
	f := newAuthFixture(t)
	for _, tok := range []string{"", "not-a-token"} {
		if _, err := f.uc.Refresh(context.Background(), tok); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			t.Errorf("Refresh(%q) = %v", tok, err)
		}
	}
}

func TestRefresh_ExpiredSessionIsRejected(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.register(t)

	memSessions{f.store}.edit(pair.RefreshToken, func(s *domain.Session) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	})

	if _, err := f.uc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Errorf("Refresh(expired) = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestRefresh_ConcurrentUseSucceedsOnce(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.register(t)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.uc.Refresh(context.Background(), pair.RefreshToken); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("successful refreshes = %d, want 1", success)
	}
}

// ---- Logout ----

func TestLogout_RevokesSession(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.register(t)
	id := f.userID(t, pair)

	if err := f.uc.Logout(context.Background(), id, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.uc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Errorf("refresh after logout: %v", err)
	}
	// idempotent
	if err := f.uc.Logout(context.Background(), id, pair.RefreshToken); err != nil {
		t.Errorf("second logout: %v", err)
	}
}

func TestLogout_UnknownSessionIsNotAnError(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.register(t)

	if err := f.uc.Logout(context.Background(), 9999, pair.RefreshToken); err != nil {
		t.Errorf("logout with foreign user id: %v", err)
	}
	if _, err := f.uc.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Errorf("session revoked by a foreign logout: %v", err)
	}
}

// ---- password reset ----

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	ok, err := f.uc.RequestPasswordReset(context.Background(), "ghost@example.com")
	if err != nil || ok {
		t.Errorf("got %v, %v; want false, nil", ok, err)
	}
	if _, sent := f.mail.last(); sent {
		t.Error("email sent for unknown address")
	}
}

func TestRequestPasswordReset_StoreError_Propagates(t *testing.T) {
	f := newAuthFixture(t)
	dbErr := errors.New("db down")
	uc := usecase.NewAuthUsecase(
		brokenUsers{memUsers{f.store}, dbErr}, memSessions{f.store}, memDevices{f.store},
		f.tokens, f.mail, testBaseURL, discard,
	)

	if _, err := uc.RequestPasswordReset(context.Background(), testEmail); !errors.Is(err, dbErr) {
		t.Errorf("want wrapped dbErr, got %v", err)
	}
}

func TestResetPassword_FullFlow(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.register(t)
	id := f.userID(t, pair)

	ok, err := f.uc.RequestPasswordReset(context.Background(), testEmail)
	if err != nil || !ok {
		t.Fatalf("RequestPasswordReset = %v, %v", ok, err)
	}
	msg, _ := f.mail.last()
	resetToken := tokenFromBody(msg.body)
	if resetToken == "" {
		t.Fatalf("no token in reset email %q", msg.body)
	}

	const newPass = "a brand new password"
	ok, err = f.uc.ResetPassword(context.Background(), resetToken, newPass)
	if err != nil || !ok {
		t.Fatalf("ResetPassword = %v, %v", ok, err)
	}

	if _, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: testPass}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
	if _, err := f.uc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Errorf("session survived reset: %v", err)
	}
	if _, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: newPass}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	u, _ := memUsers{f.store}.FindByID(context.Background(), id)
	if u.PasswordResetToken != nil || u.PasswordResetExpires != nil {
		t.Error("reset token not cleared")
	}

	reused, err := f.uc.ResetPassword(context.Background(), resetToken, "again")
	if err != nil || reused {
		t.Errorf("reused token = %v, %v; want false, nil", reused, err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	id := f.userID(t, f.register(t))

	if _, err := f.uc.RequestPasswordReset(context.Background(), testEmail); err != nil {
		t.Fatal(err)
	}
	msg, _ := f.mail.last()
	resetToken := tokenFromBody(msg.body)

	past := time.Now().Add(-time.Minute)
	memUsers{f.store}.edit(id, func(u *domain.User) { u.PasswordResetExpires = &past })

	ok, err := f.uc.ResetPassword(context.Background(), resetToken, "whatever")
	if err != nil || ok {
		t.Errorf("expired token = %v, %v; want false, nil", ok, err)
	}
}

func TestResetPassword_EmptyToken(t *testing.T) {
	f := newAuthFixture(t)
	ok, err := f.uc.ResetPassword(context.Background(), "", "x")
	if err != nil || ok {
		t.Errorf("got %v, %v", ok, err)
	}
}

// resetDuringLogin runs a hook right after Login has read the user row.
type resetDuringLogin struct {
	memUsers
	once  sync.Once
	after func()
}

func (r *resetDuringLogin) FindByEmail(ctx context.Context, addr string) (*domain.User, error) {
	u, err := r.memUsers.FindByEmail(ctx, addr)
	r.once.Do(r.after)
	return u, err
}

func TestLogin_PasswordResetMidLoginIsNotUndone(t *testing.T) {
	f := newAuthFixture(t)
	id := f.userID(t, f.register(t))

	if _, err := f.uc.RequestPasswordReset(context.Background(), testEmail); err != nil {
		t.Fatal(err)
	}
	msg, _ := f.mail.last()
	resetToken := tokenFromBody(msg.body)

	const newPass = "a brand new password"
	users := &resetDuringLogin{memUsers: memUsers{f.store}}
	users.after = func() {
		ok, err := f.uc.ResetPassword(context.Background(), resetToken, newPass)
		if err != nil || !ok {
			t.Errorf("ResetPassword = %v, %v", ok, err)
		}
	}
	uc := usecase.NewAuthUsecase(
		users, memSessions{f.store}, memDevices{f.store},
		f.tokens, f.mail, testBaseURL, discard,
	)

	if _, err := uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: testPass}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("login racing a reset = %v, want ErrInvalidCredentials", err)
	}
	if n := (memSessions{f.store}).activeFor(id, time.Now()); n != 0 {
		t.Errorf("active sessions after reset = %d, want 0", n)
	}

	if _, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: testPass}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
	if _, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: newPass}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestResetPassword_ConcurrentUseSucceedsOnce(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	if _, err := f.uc.RequestPasswordReset(context.Background(), testEmail); err != nil {
		t.Fatal(err)
	}
	msg, _ := f.mail.last()
	resetToken := tokenFromBody(msg.body)

	passwords := []string{"first new password", "second new password"}
	won := make([]bool, len(passwords))
	var wg sync.WaitGroup
	for i, p := range passwords {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.uc.ResetPassword(context.Background(), resetToken, p)
			if err != nil {
				t.Errorf("ResetPassword: %v", err)
			}
			won[i] = ok
		}()
	}
	wg.Wait()

	if won[0] == won[1] {
		t.Fatalf("winners = %v, want exactly one", won)
	}
	for i, p := range passwords {
		_, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: testEmail, Password: p})
		if won[i] && err != nil {
			t.Errorf("winning password %q rejected: %v", p, err)
		}
		if !won[i] && !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("losing password %q = %v, want ErrInvalidCredentials", p, err)
		}
	}
}

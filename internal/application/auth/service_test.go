package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/domain"
	jwtinfra "github.com/go-auth-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) Put(ctx context.Context, t *domain.VerificationToken) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockTokenStore) Get(ctx context.Context, tokenValue string) (*domain.VerificationToken, error) {
	args := m.Called(ctx, tokenValue)
	if t, _ := args.Get(0).(*domain.VerificationToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenStore) Delete(ctx context.Context, tokenValue string) error {
	return m.Called(ctx, tokenValue).Error(0)
}
func (m *mockTokenStore) Consume(ctx context.Context, tokenValue, purpose string) (*domain.VerificationToken, error) {
	args := m.Called(ctx, tokenValue, purpose)
	if t, _ := args.Get(0).(*domain.VerificationToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSessionCache struct{ mock.Mock }

func (m *mockSessionCache) Get(ctx context.Context, username string) (string, error) {
	args := m.Called(ctx, username)
	return args.String(0), args.Error(1)
}
func (m *mockSessionCache) Set(ctx context.Context, username, token string, ttl time.Duration) error {
	return m.Called(ctx, username, token, ttl).Error(0)
}
func (m *mockSessionCache) Delete(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

// fakeCache is an in-memory session cache for flow tests that need real
// overwrite/delete semantics rather than per-call expectations.
type fakeCache struct{ values map[string]string }

func newFakeCache() *fakeCache { return &fakeCache{values: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, username string) (string, error) {
	v, ok := c.values[username]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}
func (c *fakeCache) Set(_ context.Context, username, token string, _ time.Duration) error {
	c.values[username] = token
	return nil
}
func (c *fakeCache) Delete(_ context.Context, username string) error {
	delete(c.values, username)
	return nil
}

// --- helpers ---

func testCodec(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	p, err := jwtinfra.NewProvider(&config.Config{JWTSecret: "test-secret", SessionExpiry: time.Hour})
	require.NoError(t, err)
	return p
}

func newSvc(us *mockUserStore, ts *mockTokenStore, sc sessionCache, codec tokenCodec, ml *mockMailer) Service {
	return NewService(ServiceDeps{
		UserRepo:   us,
		TokenRepo:  ts,
		Sessions:   sc,
		Codec:      codec,
		Mailer:     ml,
		BaseURL:    "http://localhost:3000",
		BcryptCost: bcrypt.MinCost,
	})
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func verifiedUser(t *testing.T) *domain.User {
	return &domain.User{
		UserID:       "u1",
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: hashOf(t, "pw1"),
		Verified:     true,
	}
}

// --- Signup ---

func TestSignup_CreatesUnverifiedUserAndMailsToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(nil, domain.ErrNotFound)

	var created *domain.User
	us.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.User)
	}).Return(nil)

	var saved *domain.VerificationToken
	ts.On("Put", mock.Anything, mock.AnythingOfType("*domain.VerificationToken")).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.VerificationToken)
	}).Return(nil)

	ml.On("SendEmail", "alice@x.com", mock.Anything, mock.Anything).Return(nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		FirstName: "Alice", LastName: "Smith",
		Email: "alice@x.com", Username: "alice",
		Password: "password1", PasswordConfirmation: "password1",
	})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.False(t, created.Verified)
	assert.NotEqual(t, "password1", created.PasswordHash)
	require.NotNil(t, saved)
	assert.Len(t, saved.Token, 32)
	assert.Equal(t, domain.TokenPurposeVerify, saved.Purpose)
	assert.Equal(t, created.UserID, saved.UserID)
	assert.Equal(t, saved.Token, created.VerificationToken)
	// Emailed link embeds the token value.
	ml.AssertCalled(t, "SendEmail", "alice@x.com", mock.Anything, mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, saved.Token)
	}))
}

func TestSignup_DuplicateUsername(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		Username: "alice", Email: "other@x.com", Password: "password1",
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSignup_UsernameLookupFailureAbortsInsert(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	// An inconclusive uniqueness check must not be read as "free".
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, errors.New("dynamo unavailable"))

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		Username: "alice", Email: "alice@x.com", Password: "password1",
	})

	assert.ErrorIs(t, err, domain.ErrStorage)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignup_EmailLookupFailureAbortsInsert(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(nil, errors.New("dynamo unavailable"))

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		Username: "alice", Email: "alice@x.com", Password: "password1",
	})

	assert.ErrorIs(t, err, domain.ErrStorage)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "bob").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(verifiedUser(t), nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		Username: "bob", Email: "alice@x.com", Password: "password1",
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSignup_MailFailureIsMailError(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.Anything).Return(nil)
	ts.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		Username: "alice", Email: "alice@x.com", Password: "password1",
	})

	assert.ErrorIs(t, err, domain.ErrMail)
}

func TestSignup_TokenSaveFailureIsStorageError(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.Anything).Return(nil)
	ts.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))

	err := newSvc(us, ts, sc, testCodec(t), ml).Signup(context.Background(), domain.SignupRequest{
		Username: "alice", Email: "alice@x.com", Password: "password1",
	})

	assert.ErrorIs(t, err, domain.ErrStorage)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

// --- Confirm ---

func TestConfirm_MarksVerifiedAndDeletesToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	u := verifiedUser(t)
	u.Verified = false

	ts.On("Get", mock.Anything, "tok123").Return(&domain.VerificationToken{Token: "tok123", UserID: "u1", Email: "alice@x.com", Purpose: domain.TokenPurposeVerify}, nil)
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(u, nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		return m["verified"] == true
	})).Return(nil)
	ts.On("Delete", mock.Anything, "tok123").Return(nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).Confirm(context.Background(), domain.ConfirmRequest{Email: "alice@x.com", Token: "tok123"})

	require.NoError(t, err)
	ts.AssertCalled(t, "Delete", mock.Anything, "tok123")
}

func TestConfirm_UnknownToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	ts.On("Get", mock.Anything, "nope").Return(nil, domain.ErrNotFound)

	err := newSvc(us, ts, sc, testCodec(t), ml).Confirm(context.Background(), domain.ConfirmRequest{Email: "alice@x.com", Token: "nope"})

	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestConfirm_UnknownEmail(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	ts.On("Get", mock.Anything, "tok123").Return(&domain.VerificationToken{Token: "tok123"}, nil)
	us.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, domain.ErrNotFound)

	err := newSvc(us, ts, sc, testCodec(t), ml).Confirm(context.Background(), domain.ConfirmRequest{Email: "ghost@x.com", Token: "tok123"})

	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConfirm_AlreadyVerified(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	ts.On("Get", mock.Anything, "tok123").Return(&domain.VerificationToken{Token: "tok123"}, nil)
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(verifiedUser(t), nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).Confirm(context.Background(), domain.ConfirmRequest{Email: "alice@x.com", Token: "tok123"})

	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// --- ResendVerification ---

func TestResendVerification_UnknownEmailIsNeutralSuccess(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, domain.ErrNotFound)

	err := newSvc(us, ts, sc, testCodec(t), ml).ResendVerification(context.Background(), "ghost@x.com")

	assert.NoError(t, err)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestResendVerification_AlreadyVerifiedIsNeutralSuccess(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(verifiedUser(t), nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).ResendVerification(context.Background(), "alice@x.com")

	assert.NoError(t, err)
	ml.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
	ts.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestResendVerification_IssuesFreshToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	u := verifiedUser(t)
	u.Verified = false
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(u, nil)
	ts.On("Put", mock.Anything, mock.AnythingOfType("*domain.VerificationToken")).Return(nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ml.On("SendEmail", "alice@x.com", mock.Anything, mock.Anything).Return(nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).ResendVerification(context.Background(), "alice@x.com")

	require.NoError(t, err)
	ts.AssertCalled(t, "Put", mock.Anything, mock.Anything)
	ml.AssertCalled(t, "SendEmail", "alice@x.com", mock.Anything, mock.Anything)
}

func TestResendVerification_MailFailureMapsToStorage(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	u := verifiedUser(t)
	u.Verified = false
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(u, nil)
	ts.On("Put", mock.Anything, mock.Anything).Return(nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := newSvc(us, ts, sc, testCodec(t), ml).ResendVerification(context.Background(), "alice@x.com")

	// Never a distinct mail-failure kind on the enumeration-safe path.
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, domain.ErrMail)
}

// --- Login ---

func TestLogin_UnknownUsernameIsInvalidCredentials(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	_, err := newSvc(us, ts, sc, testCodec(t), ml).Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "pw"})

	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.NotErrorIs(t, err, domain.ErrUserNotFound)
}

func TestLogin_WrongPasswordIsInvalidCredentials(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)

	_, err := newSvc(us, ts, sc, testCodec(t), ml).Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "wrong"})

	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_UnverifiedUser(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	u := verifiedUser(t)
	u.Verified = false
	us.On("GetByUsername", mock.Anything, "alice").Return(u, nil)

	_, err := newSvc(us, ts, sc, testCodec(t), ml).Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "pw1"})

	assert.ErrorIs(t, err, domain.ErrNotVerified)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_Success_CachesTokenBeforeReturning(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}
	codec := testCodec(t)

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)
	sc.On("Set", mock.Anything, "alice", mock.AnythingOfType("string"), time.Hour).Return(nil)

	result, err := newSvc(us, ts, sc, codec, ml).Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "pw1"})

	require.NoError(t, err)
	sc.AssertCalled(t, "Set", mock.Anything, "alice", result.Token, time.Hour)

	claims, err := codec.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), result.ExpiresAt, 5*time.Second)
}

func TestLogin_CacheWriteFailureWithholdsToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)
	sc.On("Set", mock.Anything, "alice", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	result, err := newSvc(us, ts, sc, testCodec(t), ml).Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "pw1"})

	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Nil(t, result)
}

// --- Logout ---

func TestLogout_MissingToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	err := newSvc(us, ts, sc, testCodec(t), ml).Logout(context.Background(), "")

	assert.ErrorIs(t, err, domain.ErrMissingToken)
}

func TestLogout_ForgedTokenRejectedBeforeCacheLookup(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	err := newSvc(us, ts, sc, testCodec(t), ml).Logout(context.Background(), "not-a-jwt")

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	sc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestLogout_ExactlyOnceThenIdempotent(t *testing.T) {
	us, ml := &mockUserStore{}, &mockMailer{}
	codec := testCodec(t)
	cache := newFakeCache()
	svc := newSvc(us, &mockTokenStore{}, cache, codec, ml)

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)

	result, err := svc.Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), result.Token))

	// Session already absent: success, not an error.
	assert.NoError(t, svc.Logout(context.Background(), result.Token))
}

func TestLogout_SupersededTokenIsStale(t *testing.T) {
	us, ml := &mockUserStore{}, &mockMailer{}
	codec := testCodec(t)
	cache := newFakeCache()
	svc := newSvc(us, &mockTokenStore{}, cache, codec, ml)

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)

	first, err := svc.Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)
	// Tokens must differ for the staleness check to bite.
	time.Sleep(1100 * time.Millisecond)
	second, err := svc.Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	assert.ErrorIs(t, svc.Logout(context.Background(), first.Token), domain.ErrStaleToken)
	assert.NoError(t, svc.Logout(context.Background(), second.Token))
}

// --- RequestPasswordReset ---

func TestRequestPasswordReset_NeutralForUnknownAndKnownEmail(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(verifiedUser(t), nil)
	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ts.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("SendEmail", "alice@x.com", mock.Anything, mock.Anything).Return(nil)

	svc := newSvc(us, ts, sc, testCodec(t), ml)
	errUnknown := svc.RequestPasswordReset(context.Background(), "ghost@x.com")
	errKnown := svc.RequestPasswordReset(context.Background(), "alice@x.com")

	// Identical success shape either way.
	assert.NoError(t, errUnknown)
	assert.NoError(t, errKnown)
	assert.Equal(t, errUnknown, errKnown)
}

func TestRequestPasswordReset_StoresPointerAndTokenRow(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	us.On("GetByEmail", mock.Anything, "alice@x.com").Return(verifiedUser(t), nil)

	var pointer string
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		v, ok := m["reset_token"].(string)
		if ok {
			pointer = v
		}
		return ok && v != ""
	})).Return(nil)

	var row *domain.VerificationToken
	ts.On("Put", mock.Anything, mock.AnythingOfType("*domain.VerificationToken")).Run(func(args mock.Arguments) {
		row = args.Get(1).(*domain.VerificationToken)
	}).Return(nil)
	ml.On("SendEmail", "alice@x.com", mock.Anything, mock.Anything).Return(nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).RequestPasswordReset(context.Background(), "alice@x.com")

	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, pointer, row.Token)
	assert.Equal(t, domain.TokenPurposeReset, row.Purpose)
}

// --- ChangePassword ---

func TestChangePassword_NoCredential(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	err := newSvc(us, ts, sc, testCodec(t), ml).ChangePassword(context.Background(), domain.ChangePasswordRequest{NewPassword: "newpass12"})

	assert.ErrorIs(t, err, domain.ErrMissingToken)
}

func TestChangePassword_ResetPath_SingleUse(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	u := verifiedUser(t)
	u.ResetToken = "rtok"

	// First redemption consumes the row; second finds nothing.
	ts.On("Consume", mock.Anything, "rtok", domain.TokenPurposeReset).Return(&domain.VerificationToken{Token: "rtok", UserID: "u1", Email: "alice@x.com", Purpose: domain.TokenPurposeReset}, nil).Once()
	ts.On("Consume", mock.Anything, "rtok", domain.TokenPurposeReset).Return(nil, domain.ErrNotFound).Once()
	us.On("Get", mock.Anything, "u1").Return(u, nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, hasHash := m["password_hash"]
		return hasHash && m["reset_token"] == ""
	})).Return(nil)

	svc := newSvc(us, ts, sc, testCodec(t), ml)
	req := domain.ChangePasswordRequest{ResetToken: "rtok", NewPassword: "newpass12"}

	require.NoError(t, svc.ChangePassword(context.Background(), req))
	assert.ErrorIs(t, svc.ChangePassword(context.Background(), req), domain.ErrTokenNotFound)
}

func TestChangePassword_ResetPath_PointerMismatch(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	u := verifiedUser(t)
	u.ResetToken = "newer-token"

	// The row itself is valid, but the user's pointer moved on.
	ts.On("Consume", mock.Anything, "old-token", domain.TokenPurposeReset).Return(&domain.VerificationToken{Token: "old-token", UserID: "u1", Purpose: domain.TokenPurposeReset}, nil)
	us.On("Get", mock.Anything, "u1").Return(u, nil)

	err := newSvc(us, ts, sc, testCodec(t), ml).ChangePassword(context.Background(), domain.ChangePasswordRequest{ResetToken: "old-token", NewPassword: "newpass12"})

	assert.ErrorIs(t, err, domain.ErrTokenMismatch)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePassword_ResetPath_VerifyTokenRejected(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	// The purpose-conditioned consume reports a verify token as absent.
	ts.On("Consume", mock.Anything, "vtok", domain.TokenPurposeReset).Return(nil, domain.ErrNotFound)

	err := newSvc(us, ts, sc, testCodec(t), ml).ChangePassword(context.Background(), domain.ChangePasswordRequest{ResetToken: "vtok", NewPassword: "newpass12"})

	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePassword_SessionPath(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}
	codec := testCodec(t)

	signed, _, err := codec.Sign("alice")
	require.NoError(t, err)

	us.On("GetByUsername", mock.Anything, "alice").Return(verifiedUser(t), nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, hasHash := m["password_hash"]
		return hasHash
	})).Return(nil)

	err = newSvc(us, ts, sc, codec, ml).ChangePassword(context.Background(), domain.ChangePasswordRequest{SessionToken: signed, NewPassword: "newpass12"})

	require.NoError(t, err)
	ts.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePassword_SessionPath_BadToken(t *testing.T) {
	us, ts, sc, ml := &mockUserStore{}, &mockTokenStore{}, &mockSessionCache{}, &mockMailer{}

	err := newSvc(us, ts, sc, testCodec(t), ml).ChangePassword(context.Background(), domain.ChangePasswordRequest{SessionToken: "garbage", NewPassword: "newpass12"})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

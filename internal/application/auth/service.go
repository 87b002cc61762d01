package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-api/internal/domain"
	jwtinfra "github.com/go-auth-api/internal/infrastructure/jwt"
	"github.com/go-auth-api/internal/pkg/id"
	pkgtoken "github.com/go-auth-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// Verification and reset tokens live for 12 hours; the tokens table TTL
// reaps expired rows.
const tokenTTL = 12 * time.Hour

// DynamoDB attribute names used in partial update maps.
const (
	fieldVerified          = "verified"
	fieldVerificationToken = "verification_token"
	fieldResetToken        = "reset_token"
	fieldPasswordHash      = "password_hash"
)

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

type Service interface {
	Signup(ctx context.Context, req domain.SignupRequest) error
	Confirm(ctx context.Context, req domain.ConfirmRequest) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, sessionToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error
	UserInfo(ctx context.Context, username string) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.VerificationToken) error
	Get(ctx context.Context, tokenValue string) (*domain.VerificationToken, error)
	Delete(ctx context.Context, tokenValue string) error
	Consume(ctx context.Context, tokenValue, purpose string) (*domain.VerificationToken, error)
}

type sessionCache interface {
	Get(ctx context.Context, username string) (string, error)
	Set(ctx context.Context, username, token string, ttl time.Duration) error
	Delete(ctx context.Context, username string) error
}

type tokenCodec interface {
	Sign(username string) (string, time.Time, error)
	Verify(tokenStr string) (*jwtinfra.Claims, error)
	Expiry() time.Duration
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type service struct {
	userRepo   userStore
	tokenRepo  tokenStore
	sessions   sessionCache
	codec      tokenCodec
	mailer     mailer
	baseURL    string
	bcryptCost int
}

type ServiceDeps struct {
	UserRepo   userStore
	TokenRepo  tokenStore
	Sessions   sessionCache
	Codec      tokenCodec
	Mailer     mailer
	BaseURL    string
	BcryptCost int
}

func NewService(deps ServiceDeps) Service {
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{
		userRepo:   deps.UserRepo,
		tokenRepo:  deps.TokenRepo,
		sessions:   deps.Sessions,
		codec:      deps.Codec,
		mailer:     deps.Mailer,
		baseURL:    deps.BaseURL,
		bcryptCost: cost,
	}
}

// Signup creates an unverified user and emails a verification link.
// Unlike the reset/resend flows, duplicate username/email are reported to
// the caller — a registrant necessarily learns whether their identifiers
// are taken.
func (s *service) Signup(ctx context.Context, req domain.SignupRequest) error {
	// Uniqueness is enforced here, not by the store, so an inconclusive
	// lookup must abort rather than fall through to the insert.
	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		return fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("check username: %w", domain.ErrStorage)
	}
	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("check email: %w", domain.ErrStorage)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return err
	}
	verifyToken, err := pkgtoken.New()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:            id.New(),
		Username:          req.Username,
		Email:             req.Email,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		PasswordHash:      string(hash),
		Verified:          false,
		VerificationToken: verifyToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		slog.Error("signup: user insert failed", "username", req.Username, "err", err)
		return fmt.Errorf("insert user: %w", domain.ErrStorage)
	}
	if err := s.saveToken(ctx, u, verifyToken, domain.TokenPurposeVerify); err != nil {
		return err
	}
	if err := s.mailer.SendEmail(u.Email, "Confirm your account",
		"Follow the link to confirm your account: "+s.baseURL+"/confirm?token="+verifyToken); err != nil {
		slog.Error("signup: verification mail failed", "email", u.Email, "err", err)
		return fmt.Errorf("send verification mail: %w", domain.ErrMail)
	}
	return nil
}

// Confirm marks the user behind a verification token as verified and
// consumes the token.
func (s *service) Confirm(ctx context.Context, req domain.ConfirmRequest) error {
	if _, err := s.tokenRepo.Get(ctx, req.Token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("verification token: %w", domain.ErrTokenNotFound)
		}
		return fmt.Errorf("look up token: %w", domain.ErrStorage)
	}
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	if u.Verified {
		return domain.ErrAlreadyVerified
	}
	updates := map[string]interface{}{
		fieldVerified:          true,
		fieldVerificationToken: "",
	}
	if err := s.userRepo.Update(ctx, u.UserID, updates); err != nil {
		slog.Error("confirm: user update failed", "user_id", u.UserID, "err", err)
		return fmt.Errorf("mark verified: %w", domain.ErrStorage)
	}
	// Single use. The TTL would reap the row eventually, but a confirmed
	// token must not be replayable in the meantime.
	if err := s.tokenRepo.Delete(ctx, req.Token); err != nil {
		slog.Warn("confirm: failed to delete used token", "user_id", u.UserID, "err", err)
	}
	return nil
}

// ResendVerification issues a fresh verification token. The response is
// identical whether the account exists, is already verified, or was mailed
// a new token — callers cannot probe for accounts here.
func (s *service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	if u.Verified {
		return nil
	}
	verifyToken, err := pkgtoken.New()
	if err != nil {
		return err
	}
	if err := s.saveToken(ctx, u, verifyToken, domain.TokenPurposeVerify); err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{fieldVerificationToken: verifyToken}); err != nil {
		slog.Error("resend: user update failed", "user_id", u.UserID, "err", err)
		return fmt.Errorf("store verification token: %w", domain.ErrStorage)
	}
	if err := s.mailer.SendEmail(u.Email, "Confirm your account",
		"Follow the link to confirm your account: "+s.baseURL+"/confirm?token="+verifyToken); err != nil {
		slog.Error("resend: verification mail failed", "email", u.Email, "err", err)
		return fmt.Errorf("send verification mail: %w", domain.ErrStorage)
	}
	return nil
}

// Login authenticates and issues a bearer session token. The token is
// recorded in the session cache before it is released to the caller; a
// token the cache never saw must not exist client-side. Issuing a new
// token overwrites the previous cache entry, revoking the prior session.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Never a distinct "user not found" signal.
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !u.Verified {
		return nil, domain.ErrNotVerified
	}
	token, expiresAt, err := s.codec.Sign(u.Username)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	if err := s.sessions.Set(ctx, u.Username, token, s.codec.Expiry()); err != nil {
		slog.Error("login: session cache write failed", "username", u.Username, "err", err)
		return nil, fmt.Errorf("record session: %w", domain.ErrStorage)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// Logout revokes the presented session token. The signature is verified
// before the username claim is trusted, even though the cache comparison
// would also reject a forgery. Logging out an already-absent session is
// a success; presenting a token superseded by a later login is not.
func (s *service) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return domain.ErrMissingToken
	}
	claims, err := s.codec.Verify(sessionToken)
	if err != nil {
		return fmt.Errorf("invalid session token: %w", domain.ErrUnauthorized)
	}
	cached, err := s.sessions.Get(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // already logged out
		}
		return fmt.Errorf("look up session: %w", domain.ErrStorage)
	}
	if cached != sessionToken {
		return domain.ErrStaleToken
	}
	if err := s.sessions.Delete(ctx, claims.Username); err != nil {
		slog.Error("logout: session delete failed", "username", claims.Username, "err", err)
		return fmt.Errorf("delete session: %w", domain.ErrStorage)
	}
	return nil
}

// RequestPasswordReset emails a reset link. Like ResendVerification, the
// response is identical whether or not the account exists.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	resetToken, err := pkgtoken.New()
	if err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{fieldResetToken: resetToken}); err != nil {
		slog.Error("reset: user update failed", "user_id", u.UserID, "err", err)
		return fmt.Errorf("store reset token: %w", domain.ErrStorage)
	}
	if err := s.saveToken(ctx, u, resetToken, domain.TokenPurposeReset); err != nil {
		return err
	}
	if err := s.mailer.SendEmail(u.Email, "Password reset",
		"Follow the link to reset your password: "+s.baseURL+"/reset?token="+resetToken); err != nil {
		slog.Error("reset: mail failed", "email", u.Email, "err", err)
		return fmt.Errorf("send reset mail: %w", domain.ErrStorage)
	}
	return nil
}

// ChangePassword replaces the password hash via exactly one of two
// credentials: a single-use reset token, or a live session token.
func (s *service) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	switch {
	case req.ResetToken != "":
		return s.changePasswordWithResetToken(ctx, req.ResetToken, req.NewPassword)
	case req.SessionToken != "":
		return s.changePasswordWithSession(ctx, req.SessionToken, req.NewPassword)
	default:
		return domain.ErrMissingToken
	}
}

func (s *service) changePasswordWithResetToken(ctx context.Context, resetToken, newPassword string) error {
	// Fetch-and-delete is atomic and conditioned on purpose: of two racing
	// redeemers exactly one sees the row, and a verification token presented
	// here is rejected without being destroyed.
	row, err := s.tokenRepo.Consume(ctx, resetToken, domain.TokenPurposeReset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("reset token: %w", domain.ErrTokenNotFound)
		}
		return fmt.Errorf("consume token: %w", domain.ErrStorage)
	}
	u, err := s.userRepo.Get(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	// A token row can outlive the user's current reset pointer (a newer
	// request overwrites it). Only the pointer's value is honored.
	if u.ResetToken != resetToken {
		return domain.ErrTokenMismatch
	}
	return s.setPassword(ctx, u.UserID, newPassword, map[string]interface{}{fieldResetToken: ""})
}

func (s *service) changePasswordWithSession(ctx context.Context, sessionToken, newPassword string) error {
	claims, err := s.codec.Verify(sessionToken)
	if err != nil {
		return fmt.Errorf("invalid session token: %w", domain.ErrUnauthorized)
	}
	u, err := s.userRepo.GetByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	return s.setPassword(ctx, u.UserID, newPassword, nil)
}

func (s *service) setPassword(ctx context.Context, userID, newPassword string, extra map[string]interface{}) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{fieldPasswordHash: string(hash)}
	for k, v := range extra {
		updates[k] = v
	}
	if err := s.userRepo.Update(ctx, userID, updates); err != nil {
		slog.Error("change password: user update failed", "user_id", userID, "err", err)
		return fmt.Errorf("store password: %w", domain.ErrStorage)
	}
	return nil
}

// UserInfo returns the caller's own record. The transport layer has
// already proven the session, so a miss here is a plain not-found.
func (s *service) UserInfo(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("look up user: %w", domain.ErrStorage)
	}
	return u, nil
}

func (s *service) saveToken(ctx context.Context, u *domain.User, value, purpose string) error {
	now := time.Now().UTC()
	t := &domain.VerificationToken{
		Token:     value,
		UserID:    u.UserID,
		Email:     u.Email,
		Purpose:   purpose,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	}
	if err := s.tokenRepo.Put(ctx, t); err != nil {
		slog.Error("token save failed", "user_id", u.UserID, "purpose", purpose, "err", err)
		return fmt.Errorf("save token: %w", domain.ErrStorage)
	}
	return nil
}

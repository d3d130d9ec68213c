package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"hearth/internal/events"
	"hearth/internal/featureflags"
	"hearth/internal/middleware"
	"hearth/internal/models"
	"hearth/internal/observability"
	"hearth/internal/repository"
	"hearth/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	blacklistKeyPrefix = "blacklist:"
	ticketKeyPrefix    = "ws_ticket:"
)

// AuthConfig holds token secrets and lifetimes.
type AuthConfig struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	TicketTTL     time.Duration
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	User         *models.User `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	// Identifier is an email address or a username.
	Identifier string
	Password   string
}

type GoogleLoginInput struct {
	Credential string
	Code       string
}

type AuthService struct {
	users     repository.UserRepository
	tokens    repository.RefreshTokenRepository
	redis     *redis.Client
	publisher events.Publisher
	google    GoogleVerifier
	flags     *featureflags.Manager
	cfg       AuthConfig
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	rdb *redis.Client,
	publisher events.Publisher,
	google GoogleVerifier,
	flags *featureflags.Manager,
	cfg AuthConfig,
) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.TicketTTL <= 0 {
		cfg.TicketTTL = 30 * time.Second
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		redis:     rdb,
		publisher: publisher,
		google:    google,
		flags:     flags,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}
	if existing, err = s.users.GetByUsername(ctx, in.Username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("Username is already taken")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Username
	}
	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
		Name:     name,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.publisher, events.UserRegistered, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"provider": "password",
	})

	return s.issue(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	user, err := s.users.GetByLogin(ctx, identifier)
	if err != nil {
		return nil, err
	}
	// Google-only accounts have no password and cannot log in this way.
	if user == nil || user.Password == "" {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	return s.issue(ctx, user)
}

// Refresh rotates a refresh token. Presenting a token that is no longer on
// the allow-list is treated as theft: every token of that user is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, models.NewUnauthorizedError("Refresh token required")
	}
	claims, err := middleware.ParseToken(refreshToken, s.cfg.RefreshSecret, middleware.TokenTypeRefresh)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid refresh token")
	}

	removed, err := s.tokens.Remove(ctx, claims.UserID, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !removed {
		if clearErr := s.tokens.Clear(ctx, claims.UserID); clearErr != nil {
			return nil, clearErr
		}
		observability.RefreshTokenReuse.Inc()
		middleware.Logger.WarnContext(ctx, "refresh token reuse detected",
			slog.Uint64("user_id", uint64(claims.UserID)),
		)
		events.Emit(ctx, s.publisher, events.RefreshTokenReuse, map[string]any{
			"userId": claims.UserID,
		})
		return nil, models.NewUnauthorizedError("Refresh token reuse detected")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("Invalid refresh token")
		}
		return nil, err
	}

	return s.issue(ctx, user)
}

// Logout drops the presented refresh token from the allow-list and, when an
// access token is known, blacklists its jti until it would have expired.
// Neither step failing is reported to the caller.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, access *middleware.TokenClaims) {
	if refreshToken != "" {
		if claims, err := middleware.ParseToken(refreshToken, s.cfg.RefreshSecret, middleware.TokenTypeRefresh); err == nil {
			if _, err := s.tokens.Remove(ctx, claims.UserID, hashToken(refreshToken)); err != nil {
				middleware.Logger.ErrorContext(ctx, "failed to remove refresh token",
					slog.Uint64("user_id", uint64(claims.UserID)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if access == nil || access.JTI == "" || s.redis == nil {
		return
	}
	ttl := access.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.redis.Set(ctx, blacklistKeyPrefix+access.JTI, "1", ttl).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("blacklist").Inc()
		middleware.Logger.ErrorContext(ctx, "failed to blacklist access token",
			slog.String("error", err.Error()),
		)
	}
}

// IsRevoked reports whether an access token id was blacklisted by Logout.
func (s *AuthService) IsRevoked(ctx context.Context, jti string) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, blacklistKeyPrefix+jti).Result()
	if err != nil {
		middleware.RedisErrors.WithLabelValues("blacklist").Inc()
		return false
	}
	return n > 0
}

func (s *AuthService) Verify(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("User no longer exists")
		}
		return nil, err
	}
	return user, nil
}

// GoogleLogin signs in with a Google ID token or authorization code. Users
// are matched by Google id, then by email (linking the account), and
// created otherwise.
func (s *AuthService) GoogleLogin(ctx context.Context, in GoogleLoginInput) (*AuthResult, error) {
	if !s.flags.EnabledOr(featureflags.FlagGoogleLogin, 0, true) || s.google == nil {
		return nil, models.NewForbiddenError("Google sign-in is disabled")
	}

	var (
		identity *GoogleIdentity
		err      error
	)
	switch {
	case in.Credential != "":
		identity, err = s.google.VerifyCredential(ctx, in.Credential)
	case in.Code != "":
		identity, err = s.google.ExchangeCode(ctx, in.Code)
	default:
		return nil, models.NewValidationError("credential or code is required")
	}
	if err != nil {
		if errors.Is(err, ErrGoogleNotConfigured) {
			return nil, models.NewForbiddenError("Google sign-in is not configured")
		}
		middleware.Logger.WarnContext(ctx, "google verification failed", slog.String("error", err.Error()))
		return nil, models.NewUnauthorizedError("Invalid Google credential")
	}
	if identity.Email == "" || identity.Subject == "" {
		return nil, models.NewUnauthorizedError("Email not provided by Google")
	}

	user, err := s.users.GetByGoogleID(ctx, identity.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.linkOrCreateGoogleUser(ctx, identity)
		if err != nil {
			return nil, err
		}
	}

	return s.issue(ctx, user)
}

func (s *AuthService) linkOrCreateGoogleUser(ctx context.Context, identity *GoogleIdentity) (*models.User, error) {
	googleID := identity.Subject

	user, err := s.users.GetByEmail(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if !identity.EmailVerified {
			return nil, models.NewConflictError("An account with this email already exists")
		}
		user.GoogleID = &googleID
		if user.Avatar == "" {
			user.Avatar = identity.Picture
		}
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	name := identity.Name
	if name == "" {
		name = strings.Split(identity.Email, "@")[0]
	}
	user = &models.User{
		Username: usernameFromEmail(identity.Email),
		Email:    identity.Email,
		Name:     name,
		Avatar:   identity.Picture,
		GoogleID: &googleID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.publisher, events.UserRegistered, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"provider": "google",
	})
	return user, nil
}

// usernameFromEmail keeps the allowed characters of the local part and adds
// a short random suffix.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
		if b.Len() >= 20 {
			break
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}
	return base + "_" + uuid.NewString()[:6]
}

// IssueTicket stores a single-use WebSocket ticket for userID.
func (s *AuthService) IssueTicket(ctx context.Context, userID uint) (string, error) {
	if s.redis == nil {
		return "", models.NewInternalError(errors.New("ticket store unavailable"))
	}
	ticket := uuid.NewString()
	if err := s.redis.Set(ctx, ticketKeyPrefix+ticket, userID, s.cfg.TicketTTL).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("ws_ticket").Inc()
		return "", models.NewInternalError(err)
	}
	return ticket, nil
}

// ResolveTicket consumes a ticket issued by IssueTicket.
func (s *AuthService) ResolveTicket(ctx context.Context, ticket string) (uint, bool) {
	if s.redis == nil || ticket == "" {
		return 0, false
	}
	val, err := s.redis.GetDel(ctx, ticketKeyPrefix+ticket).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues("ws_ticket").Inc()
		}
		return 0, false
	}
	id, err := strconv.ParseUint(val, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	now := s.now()
	access, err := s.sign(user, middleware.TokenTypeAccess, s.cfg.Secret, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	refresh, err := s.sign(user, middleware.TokenTypeRefresh, s.cfg.RefreshSecret, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.tokens.Add(ctx, user.ID, hashToken(refresh), now.Add(s.cfg.RefreshTTL)); err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: access, RefreshToken: refresh}, nil
}

func (s *AuthService) sign(user *models.User, typ, secret string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%s token secret not configured", typ)
	}
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(user.ID), 10),
		"username": user.Username,
		"typ":      typ,
		"iss":      middleware.TokenIssuer,
		"aud":      middleware.TokenAudience,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      generateJTI(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func generateJTI(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8])
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

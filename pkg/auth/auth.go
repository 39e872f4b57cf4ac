// Package auth registers users, checks credentials and issues and resolves
// bearer tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/user"
)

// DefaultTokenTTL is used when Config.TokenTTL is zero.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Config holds the service's secrets and tuning.
type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int

	// Admin registration requires one of these. InviteTokenHash is a bcrypt
	// hash and takes precedence over the plain InviteToken.
	InviteToken     string
	InviteTokenHash string
}

// Session is a user together with a freshly issued token.
type Session struct {
	User      *user.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// RegisterInput is a registration request.
type RegisterInput struct {
	Name        string `json:"name"`
	Handle      string `json:"handle"`
	Secret      string `json:"secret"`
	AvatarURL   string `json:"avatar_url"`
	InviteToken string `json:"admin_invite_token"`
}

// ProfileInput is a partial profile update. Nil fields are left untouched.
type ProfileInput struct {
	Name      *string `json:"name"`
	Handle    *string `json:"handle"`
	Secret    *string `json:"secret"`
	AvatarURL *string `json:"avatar_url"`
}

func invalidCredentials() error {
	return apperr.Unauthorized("invalid handle or secret")
}

// Service implements registration, login and token resolution.
type Service struct {
	users user.Store
	cfg   Config
	log   log.FieldLogger
	now   func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService creates a Service. A missing secret is reported per request as
// a configuration error.
func NewService(users user.Store, cfg Config, logger log.FieldLogger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{users: users, cfg: cfg, log: logger, now: time.Now}
}

// Register creates a member, or an admin when a valid invite token is
// supplied, and returns it with a token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	const op = "auth.register"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := ValidateHandle(in.Handle); err != nil {
		return nil, err
	}
	if err := ValidateSecret(in.Secret); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	role := user.RoleMember
	if in.InviteToken != "" {
		if err := s.checkInvite(in.InviteToken); err != nil {
			s.log.WithField("operation", op).WithField("handle", user.NormalizeHandle(in.Handle)).Warn("admin invite rejected")
			return nil, err
		}
		role = user.RoleAdmin
	}

	handle := user.NormalizeHandle(in.Handle)
	if _, err := s.users.ByHandle(ctx, handle); err == nil {
		return nil, apperr.Conflict("handle already in use")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Internal(err, "failed to check handle")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Secret), s.cfg.BcryptCost)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash secret")
	}

	u, err := s.users.Create(ctx, &user.User{
		Name:       name,
		Handle:     handle,
		SecretHash: string(hash),
		AvatarURL:  strings.TrimSpace(in.AvatarURL),
		Role:       role,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
		return nil, apperr.Internal(err, "failed to create user")
	}

	s.log.WithField("operation", op).WithField("user_id", u.ID).WithField("role", u.Role).Info("user registered")
	return s.session(u)
}

// Login verifies credentials. Unknown handles and wrong secrets produce the
// same error.
func (s *Service) Login(ctx context.Context, handle, secret string) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(handle) == "" || secret == "" {
		return nil, apperr.Validation("handle and secret are required")
	}

	u, err := s.users.ByHandle(ctx, user.NormalizeHandle(handle))
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Internal(err, "failed to look up user")
		}
		// Spend the same bcrypt work as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(secret))
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.SecretHash), []byte(secret)); err != nil {
		return nil, invalidCredentials()
	}

	s.log.WithField("operation", "auth.login").WithField("user_id", u.ID).Info("user logged in")
	return s.session(u)
}

// ResolveIdentity maps a bearer token to its user.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (*user.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Unauthorized("missing bearer token")
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token").Wrap(err)
	}
	if claims.Subject == "" {
		return nil, apperr.Unauthorized("invalid or expired token")
	}

	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, apperr.Internal(err, "failed to load user")
	}
	if u.TokenVersion != claims.Version {
		return nil, apperr.Unauthorized("token has been revoked")
	}
	return u, nil
}

// UpdateProfile changes the acting user's own profile. Changing the secret
// revokes every token issued before it. A fresh token is always returned.
func (s *Service) UpdateProfile(ctx context.Context, acting *user.User, in ProfileInput) (*Session, error) {
	const op = "auth.update_profile"
	if err := s.ready(); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		updates["name"] = name
	}
	if in.Handle != nil {
		if err := ValidateHandle(*in.Handle); err != nil {
			return nil, err
		}
		h := user.NormalizeHandle(*in.Handle)
		if h != acting.Handle {
			if other, err := s.users.ByHandle(ctx, h); err == nil && other.ID != acting.ID {
				return nil, apperr.Conflict("handle already in use")
			} else if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.Internal(err, "failed to check handle")
			}
			updates["handle"] = h
		}
	}
	if in.Secret != nil {
		if err := ValidateSecret(*in.Secret); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Secret), s.cfg.BcryptCost)
		if err != nil {
			return nil, apperr.Internal(err, "failed to hash secret")
		}
		updates["secret_hash"] = string(hash)
		updates["token_version"] = acting.TokenVersion + 1
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}

	u := acting
	if len(updates) > 0 {
		var err error
		u, err = s.users.Update(ctx, acting.ID, updates)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindConflict, apperr.KindNotFound:
				return nil, err
			}
			return nil, apperr.Internal(err, "failed to update profile")
		}
		s.log.WithField("operation", op).WithField("user_id", u.ID).WithField("fields", len(updates)).Info("profile updated")
	}
	return s.session(u)
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, exp, err := s.issue(u.ID, string(u.Role), u.TokenVersion)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue token")
	}
	return &Session{User: u, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) ready() error {
	if len(s.cfg.Secret) == 0 {
		return apperr.Configuration("token signing secret is not configured")
	}
	return nil
}

func (s *Service) checkInvite(token string) error {
	switch {
	case s.cfg.InviteTokenHash != "":
		if bcrypt.CompareHashAndPassword([]byte(s.cfg.InviteTokenHash), []byte(token)) == nil {
			return nil
		}
	case s.cfg.InviteToken != "":
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.InviteToken)) == 1 {
			return nil
		}
	default:
		return apperr.Configuration("admin registration is not configured")
	}
	return apperr.Forbidden("invalid admin invite token")
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-secret"), s.cfg.BcryptCost)
	})
	return s.dummyHash
}

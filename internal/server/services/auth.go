package services

import (
	"context"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/auth"
	"github.com/njarm23/ClaudeMemories/internal/server/config"
)

// AuthService handles the shared-password login and token checks.
type AuthService struct {
	password  string
	jwtSecret []byte
	validity  time.Duration
	log       logging.Logger
}

func NewAuthService(cfg *config.Config, log logging.Logger) *AuthService {
	return &AuthService{
		password:  cfg.AuthPassword,
		jwtSecret: []byte(cfg.SecretKey),
		validity:  cfg.TokenValidity,
		log:       log.With("module", "auth"),
	}
}

// Login trades the password for a bearer token.
func (s *AuthService) Login(ctx context.Context, password string) (string, error) {
	if !auth.CheckPassword(s.password, password) {
		s.log.Warn(ctx, "login rejected")
		return "", common.ErrorUnauthorized
	}
	return auth.GenerateToken(auth.Subject, s.jwtSecret, s.validity)
}

// Verify checks a bearer token and returns its subject.
func (s *AuthService) Verify(token string) (string, error) {
	return auth.ParseToken(token, s.jwtSecret)
}

// IssueToken mints a token without a password, for the admin CLI.
func (s *AuthService) IssueToken(validity time.Duration) (string, error) {
	if validity <= 0 {
		validity = s.validity
	}
	return auth.GenerateToken(auth.Subject, s.jwtSecret, validity)
}

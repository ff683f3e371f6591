package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/pkg/logger"
)

// Service authenticates bearer tokens against a static token table.
type Service struct {
	mode   Mode
	tokens []tokenEntry
	audit  *slog.Logger
}

type tokenEntry struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// NewService validates cfg and builds the token table. An empty mode means
// disabled.
func NewService(cfg Config) (*Service, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDisabled
	}
	s := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return s, nil
	case ModeToken:
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("unknown auth mode %q", mode))
	}

	if len(cfg.Tokens) == 0 {
		return nil, xerrors.New(xerrors.CodeConfiguration, "token auth needs at least one token")
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for i, tc := range cfg.Tokens {
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			name = fmt.Sprintf("token-%d", i)
		}
		token := strings.TrimSpace(tc.Token)
		if token == "" {
			return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("auth token %s is empty", name))
		}
		if _, dup := seen[token]; dup {
			return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("auth token %s is declared twice", name))
		}
		seen[token] = struct{}{}

		subject := &Subject{Name: name, Permissions: append([]string(nil), tc.Permissions...), Disabled: tc.Disabled}
		subject.normalise()
		s.tokens = append(s.tokens, tokenEntry{digest: sha256.Sum256([]byte(token)), subject: subject})
	}
	return s, nil
}

// Mode returns the configured mode.
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// AuthenticateRequest resolves an Authorization header to a subject.
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	token, err := bearerToken(authorization)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256([]byte(token))

	var match *Subject
	for _, entry := range s.tokens {
		if subtle.ConstantTimeCompare(entry.digest[:], digest[:]) == 1 {
			match = entry.subject
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	if match.Disabled {
		return nil, ErrSubjectRevoked
	}
	return match.Clone(), nil
}

func bearerToken(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"retreat/internal/database"
	"retreat/internal/domain"
	"retreat/internal/metrics"
	"retreat/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
)

const defaultTokenTTL = 24 * time.Hour

// TokenSettings configures member session tokens.
type TokenSettings struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Token is the login response.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type MemberService struct {
	repo     domain.MemberRepository
	settings TokenSettings
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewMemberService(repo domain.MemberRepository, settings TokenSettings, logger *zerolog.Logger) *MemberService {
	if settings.TTL <= 0 {
		settings.TTL = defaultTokenTTL
	}
	if settings.Issuer == "" {
		settings.Issuer = "retreat"
	}
	return &MemberService{
		repo:     repo,
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
}

// Register creates a member account with a bcrypt password hash.
func (s *MemberService) Register(ctx context.Context, creds *models.Credentials) (*models.Member, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validateStruct(creds); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	m := &models.Member{Email: creds.Email, PasswordHash: string(hash)}
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("member_id", m.ID).Str("email", m.Email).Msg("Member registered")
	return m, nil
}

func (s *MemberService) Login(ctx context.Context, creds *models.Credentials) (*Token, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validateStruct(creds); err != nil {
		return nil, err
	}

	m, err := s.repo.GetMemberByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(creds.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn().Str("email", m.Email).Msg("Login failed")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	return s.issueToken(m.ID)
}

func (s *MemberService) issueToken(memberID int64) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.settings.TTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(memberID, 10),
		Issuer:    s.settings.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.settings.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}, nil
}

// VerifyToken returns the member id carried by a bearer token.
func (s *MemberService) VerifyToken(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.settings.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.settings.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// GetProfile returns the stored profile or an empty one for a new member.
func (s *MemberService) GetProfile(ctx context.Context, memberID int64) (*models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, memberID)
	if errors.Is(err, database.ErrNotFound) {
		return &models.Profile{MemberID: memberID, Ministries: []string{}}, nil
	}
	return p, err
}

func (s *MemberService) UpdateProfile(ctx context.Context, memberID int64, p *models.Profile) (*models.Profile, error) {
	p.MemberID = memberID
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = normalizeEmail(p.Email)
	if err := validateStruct(p); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	metrics.IncForm(models.FormProfile)
	s.logger.Info().Int64("member_id", memberID).Msg("Profile updated")
	return p, nil
}

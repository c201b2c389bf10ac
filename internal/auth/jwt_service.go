package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is used when no TTL is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// Participant roles carried in the role claim.
const (
	RoleAgent = "agent"
	RoleUser  = "user"
)

var (
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrUnsupportedRole is returned when issuing for a role other than agent or user.
	ErrUnsupportedRole = errors.New("jwt: unsupported role")
)

// JWTConfig configures a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	// Leeway tolerates clock skew between the issuer and this server.
	Leeway time.Duration
	Clock  func() time.Time
}

// Claims identify a relay participant. UserID is the decimal identity; the token ID (jti) is
// random per token and only used for log correlation.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the numeric participant identity.
func (c *Claims) Identity() (int64, error) {
	id, err := strconv.ParseInt(c.UserID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("jwt: uid claim %q is not a positive integer", c.UserID)
	}
	return id, nil
}

// TokenRequest describes the participant a token is issued for.
type TokenRequest struct {
	Identity int64
	Role     string
	Audience []string
}

// JWTService issues and verifies HS256 access tokens for relay participants.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewJWTService validates cfg and builds the service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if svc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(svc.issuer))
	}
	svc.parser = jwt.NewParser(opts...)

	return svc, nil
}

// Issue signs a token for the participant.
func (s *JWTService) Issue(req TokenRequest) (string, error) {
	if req.Identity <= 0 {
		return "", errors.New("jwt: identity must be positive")
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !validRole(role) {
		return "", fmt.Errorf("%w %q", ErrUnsupportedRole, req.Role)
	}

	now := s.now()
	uid := strconv.FormatInt(req.Identity, 10)
	claims := &Claims{
		UserID: uid,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Issuer:    s.issuer,
			Audience:  req.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token and checks signature, expiry, issuer, identity and role.
func (s *JWTService) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims Claims
	if _, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if _, err := claims.Identity(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims.Role = strings.ToLower(strings.TrimSpace(claims.Role))
	if !validRole(claims.Role) {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return &claims, nil
}

func validRole(role string) bool {
	return role == RoleAgent || role == RoleUser
}

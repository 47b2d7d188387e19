package service

import (
	"strings"

	"github.com/dujiao-next/bookshop/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// CustomerClaims 认证平台签发的顾客令牌
type CustomerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// CustomerIdentity 已验证的顾客身份
type CustomerIdentity struct {
	UserID string
	Email  string
}

// UserAuthService 校验顾客身份令牌，本服务不签发顾客令牌
type UserAuthService struct {
	cfg config.UserAuthConfig
}

// NewUserAuthService 创建顾客令牌校验服务
func NewUserAuthService(cfg config.UserAuthConfig) *UserAuthService {
	return &UserAuthService{cfg: cfg}
}

// Enabled 是否配置了令牌密钥
func (s *UserAuthService) Enabled() bool {
	return s != nil && strings.TrimSpace(s.cfg.SecretKey) != ""
}

// Verify 校验签名、有效期、issuer 与 audience，subject 即用户 ID
func (s *UserAuthService) Verify(tokenString string) (*CustomerIdentity, error) {
	if !s.Enabled() {
		return nil, ErrTokenInvalid
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(s.cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(s.cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	claims := &CustomerClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, ErrTokenInvalid
	}
	return &CustomerIdentity{
		UserID: subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
	}, nil
}

// IssueTestToken 用同一密钥签发顾客令牌，仅供本地联调与测试
func (s *UserAuthService) IssueTestToken(claims CustomerClaims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = s.cfg.Issuer
	}
	if claims.Audience == nil && s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.SecretKey))
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminPasswordMinLength = 8
	adminPasswordMaxLength = 72
	defaultJWTExpireHours  = 24
)

// ErrTokenInvalid 管理端令牌无效或已失效
var ErrTokenInvalid = errors.New("token is invalid")

// ErrPasswordPolicy 密码不符合要求
var ErrPasswordPolicy = errors.New("password must be 8 to 72 characters")

// AuthService 管理员认证服务
type AuthService struct {
	cfg       config.JWTConfig
	adminRepo repository.AdminRepository
	captcha   *CaptchaService
	now       func() time.Time
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg config.JWTConfig, adminRepo repository.AdminRepository, captcha *CaptchaService) *AuthService {
	if cfg.ExpireHours <= 0 {
		cfg.ExpireHours = defaultJWTExpireHours
	}
	return &AuthService{
		cfg:       cfg,
		adminRepo: adminRepo,
		captcha:   captcha,
		now:       time.Now,
	}
}

// HashPassword 使用 bcrypt 加密密码
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 验证密码
func (s *AuthService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword 校验密码长度
func (s *AuthService) ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < adminPasswordMinLength || len(password) > adminPasswordMaxLength {
		return ErrPasswordPolicy
	}
	return nil
}

// JWTClaims JWT 声明
type JWTClaims struct {
	AdminID      uint   `json:"admin_id"`
	Username     string `json:"username"`
	TokenVersion uint64 `json:"token_version"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成 JWT Token
func (s *AuthService) GenerateJWT(admin *models.Admin) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(time.Duration(s.cfg.ExpireHours) * time.Hour)

	claims := JWTClaims{
		AdminID:      admin.ID,
		Username:     admin.Username,
		TokenVersion: admin.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrTokenInvalid
}

// Authenticate 解析令牌并核对 token 版本，改密后旧令牌失效
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*cache.AdminAuthState, error) {
	claims, err := s.ParseJWT(strings.TrimSpace(tokenString))
	if err != nil {
		return nil, err
	}
	state, hit, err := cache.GetAdminAuthState(ctx, claims.AdminID)
	if err != nil {
		logger.Warnw("admin_auth_state_cache_read_failed", "admin_id", claims.AdminID, "error", err)
	}
	if !hit || state == nil {
		admin, err := s.adminRepo.GetByID(claims.AdminID)
		if err != nil {
			return nil, err
		}
		if admin == nil {
			return nil, ErrTokenInvalid
		}
		state = cache.BuildAdminAuthState(admin)
		if err := cache.SetAdminAuthState(ctx, state); err != nil {
			logger.Warnw("admin_auth_state_cache_write_failed", "admin_id", admin.ID, "error", err)
		}
	}
	if state.TokenVersion != claims.TokenVersion {
		return nil, ErrTokenInvalid
	}
	return state, nil
}

// LoginInput 登录输入
type LoginInput struct {
	Username string               `json:"username" binding:"required"`
	Password string               `json:"password" binding:"required"`
	Captcha  CaptchaVerifyPayload `json:"captcha"`
}

// Login 管理员登录
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.Admin, string, time.Time, error) {
	if err := s.captcha.Verify(input.Captcha); err != nil {
		return nil, "", time.Time{}, err
	}
	admin, err := s.adminRepo.GetByUsername(strings.TrimSpace(input.Username))
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if admin == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := s.VerifyPassword(admin.PasswordHash, input.Password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.GenerateJWT(admin)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := s.now()
	admin.LastLoginAt = &now
	if err := s.adminRepo.TouchLastLogin(admin.ID, now); err != nil {
		logger.Warnw("admin_last_login_update_failed", "admin_id", admin.ID, "error", err)
	}
	_ = cache.SetAdminAuthState(ctx, cache.BuildAdminAuthState(admin))
	logger.Infow("admin_login", "admin_id", admin.ID, "username", admin.Username)
	return admin, token, expiresAt, nil
}

// ChangePassword 修改管理员密码，并使已签发令牌失效
func (s *AuthService) ChangePassword(ctx context.Context, adminID uint, oldPassword, newPassword string) error {
	admin, err := s.adminRepo.GetByID(adminID)
	if err != nil {
		return err
	}
	if admin == nil {
		return ErrAdminNotFound
	}
	if err := s.VerifyPassword(admin.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}

	hashedPassword, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	admin.PasswordHash = hashedPassword
	admin.TokenVersion++
	if err := s.adminRepo.Update(admin); err != nil {
		return err
	}
	_ = cache.SetAdminAuthState(ctx, cache.BuildAdminAuthState(admin))
	logger.Infow("admin_password_changed", "admin_id", admin.ID)
	return nil
}

// EnsureDefaultAdmin 没有任何管理员时按配置创建超级管理员
func (s *AuthService) EnsureDefaultAdmin(cfg config.AdminConfig) error {
	count, err := s.adminRepo.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	username := strings.TrimSpace(cfg.DefaultUsername)
	if username == "" || cfg.DefaultPassword == "" {
		logger.Warnw("default_admin_skipped", "reason", "credentials_not_configured")
		return nil
	}
	hash, err := s.HashPassword(cfg.DefaultPassword)
	if err != nil {
		return err
	}
	if err := s.adminRepo.Create(&models.Admin{Username: username, PasswordHash: hash, IsSuper: true}); err != nil {
		return err
	}
	logger.Infow("default_admin_created", "username", username)
	return nil
}

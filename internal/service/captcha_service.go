package service

import (
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"

	"github.com/mojocn/base64Captcha"
)

const captchaAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// CaptchaVerifyPayload 验证码校验请求载荷
type CaptchaVerifyPayload struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

// CaptchaImageChallenge 图片验证码挑战
type CaptchaImageChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaService 管理端登录图片验证码
type CaptchaService struct {
	cfg     config.CaptchaConfig
	store   base64Captcha.Store
	captcha *base64Captcha.Captcha
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	if cfg.Length <= 0 {
		cfg.Length = 5
	}
	if cfg.Width <= 0 {
		cfg.Width = 240
	}
	if cfg.Height <= 0 {
		cfg.Height = 80
	}
	if cfg.ExpireSeconds <= 0 {
		cfg.ExpireSeconds = 300
	}
	if cfg.MaxStore <= 0 {
		cfg.MaxStore = 10240
	}
	store := base64Captcha.NewMemoryStore(cfg.MaxStore, time.Duration(cfg.ExpireSeconds)*time.Second)
	driver := base64Captcha.NewDriverString(
		cfg.Height,
		cfg.Width,
		2,
		base64Captcha.OptionShowHollowLine,
		cfg.Length,
		captchaAlphabet,
		nil,
		base64Captcha.DefaultEmbeddedFonts,
		nil,
	)
	return &CaptchaService{
		cfg:     cfg,
		store:   store,
		captcha: base64Captcha.NewCaptcha(driver, store),
	}
}

// Enabled 是否要求验证码
func (s *CaptchaService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// GenerateImageChallenge 生成图片验证码
func (s *CaptchaService) GenerateImageChallenge() (*CaptchaImageChallenge, error) {
	if !s.Enabled() {
		return nil, ErrCaptchaRequired
	}
	id, b64s, _, err := s.captcha.Generate()
	if err != nil {
		return nil, err
	}
	return &CaptchaImageChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 校验验证码，校验后即失效；未启用时直接通过
func (s *CaptchaService) Verify(payload CaptchaVerifyPayload) error {
	if !s.Enabled() {
		return nil
	}
	id := strings.TrimSpace(payload.CaptchaID)
	code := strings.TrimSpace(payload.CaptchaCode)
	if id == "" || code == "" {
		return ErrCaptchaRequired
	}
	if !s.store.Verify(id, strings.ToLower(code), true) {
		return ErrCaptchaInvalid
	}
	return nil
}

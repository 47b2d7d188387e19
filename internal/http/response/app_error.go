package response

import "errors"

// AppError 统一错误包装，Code 为业务状态码
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误；已是 AppError 时沿用其状态码与文案
func WrapError(code int, message string, err error) *AppError {
	var existing *AppError
	if errors.As(err, &existing) {
		return existing
	}
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 提取错误携带的状态码，非 AppError 返回 fallback
func CodeOf(err error, fallback int) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	return fallback
}

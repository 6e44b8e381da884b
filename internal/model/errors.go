// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, feed, article, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidAction        = "INVALID_ACTION"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeConfirmationMismatch = "CONFIRMATION_MISMATCH"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeFeedNotFound         = "FEED_NOT_FOUND"
	ErrCodeEmailAlreadyExists   = "EMAIL_ALREADY_EXISTS"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewValidationError は入力値の欠落・不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "Check the request parameters and try again.",
	}
}

// NewInvalidActionError はmark/unmark以外のactionが指定された場合のエラーを生成する。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("Invalid action: %q", action),
		Category: "validation",
		Action:   "Use either \"mark\" or \"unmark\".",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレス未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewForbiddenError はリソースの所有者でない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "Only the owner can modify this resource.",
	}
}

// NewConfirmationMismatchError は退会時の確認メールアドレス不一致エラーを生成する。
func NewConfirmationMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationMismatch,
		Message:  "Email confirmation does not match",
		Category: "auth",
		Action:   "Type the email address of your account exactly.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewFeedNotFoundError はフィードが見つからない場合のエラーを生成する。
func NewFeedNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  "Feed not found",
		Category: "feed",
		Action:   "Check the feed ID.",
	}
}

// NewEmailAlreadyExistsError は登録済みメールアドレスで登録しようとした場合のエラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  "User with this email already exists",
		Category: "auth",
		Action:   "Log in or use another email address.",
	}
}

// NewInternalError はクライアントに返す汎用の内部エラーを生成する。
// 詳細はサーバーログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// Package auth はパスワード認証、トークン発行、アカウント管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

// Service はアカウントに関するビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	activity  repository.UserActivityRepository
	passwords *PasswordService
	tokens    *TokenService
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	activity repository.UserActivityRepository,
	passwords *PasswordService,
	tokens *TokenService,
) *Service {
	return &Service{
		users:     users,
		activity:  activity,
		passwords: passwords,
		tokens:    tokens,
	}
}

// Register はユーザーを登録し、ユーザーと認証トークンを返す。
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", model.NewValidationError("Email and password are required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, "", model.NewEmailAlreadyExistsError()
	}

	hash, err := s.passwords.Hash(password)
	if errors.Is(err, ErrPasswordTooLong) {
		return nil, "", model.NewValidationError("Password must be 72 bytes or fewer")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// FindByEmailと挿入の間に同じメールアドレスが登録された場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", model.NewEmailAlreadyExistsError()
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	slog.Info("user registered", slog.Int("user_id", user.ID))
	return user, token, nil
}

// Login はメールアドレスとパスワードで認証し、ユーザーと認証トークンを返す。
// 未登録とパスワード不一致はどちらもINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", model.NewValidationError("Email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		slog.Warn("login failed", slog.String("reason", "unknown_email"))
		return nil, "", model.NewInvalidCredentialsError()
	}
	if !s.passwords.Compare(user.PasswordHash, password) {
		slog.Warn("login failed", slog.String("reason", "invalid_password"), slog.Int("user_id", user.ID))
		return nil, "", model.NewInvalidCredentialsError()
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	slog.Info("user logged in", slog.Int("user_id", user.ID))
	return user, token, nil
}

// Profile はユーザー情報を返す。
func (s *Service) Profile(ctx context.Context, userID int) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は表示名を更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID int, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("Name is required")
	}

	user, err := s.users.UpdateName(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// DeleteAccount は確認用メールアドレスが一致する場合にアカウントを削除する。
// 比較は大文字小文字を区別する。activity DBのデータを1トランザクションで削除した後、
// identity DBのユーザーを削除する。DB間のトランザクションはないため、
// 途中で失敗した場合は再実行で残りを削除できる。
func (s *Service) DeleteAccount(ctx context.Context, userID int, confirmationEmail string) error {
	if confirmationEmail == "" {
		return model.NewValidationError("Confirmation email is required")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.Email != confirmationEmail {
		slog.Warn("account deletion rejected", slog.String("reason", "email_mismatch"), slog.Int("user_id", userID))
		return model.NewConfirmationMismatchError()
	}

	if err := s.activity.DeleteAllByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user activity: %w", err)
	}
	if err := s.users.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("account deleted", slog.Int("user_id", userID))
	return nil
}

func (s *Service) issueToken(user *model.User) (string, error) {
	token, err := s.tokens.Sign(Claims{UserID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost はbcryptのコスト。既存ユーザーのハッシュと同じ10を使う。
const defaultCost = 10

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

// ErrPasswordTooLong はパスワードがbcryptの上限を超える場合のエラー。
var ErrPasswordTooLong = errors.New("password must be 72 bytes or fewer")

// PasswordService はbcryptによるパスワードのハッシュ化と照合を提供する。
type PasswordService struct {
	cost int
}

// NewPasswordService はデフォルトコストのPasswordServiceを生成する。
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// newPasswordServiceWithCost はテスト用にコストを指定してPasswordServiceを生成する。
func newPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash は平文パスワードをbcryptでハッシュ化する。
func (p *PasswordService) Hash(plain string) (string, error) {
	if len(plain) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare は平文パスワードがハッシュと一致するかを返す。
// ハッシュが壊れている場合も含め、一致しなければfalse。
func (p *PasswordService) Compare(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

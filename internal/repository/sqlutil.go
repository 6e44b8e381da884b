package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// ErrDuplicateEmail はメールアドレスが既に登録されている場合のエラー。
var ErrDuplicateEmail = errors.New("email already exists")

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// isUniqueViolation はerrが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern はILIKE用の部分一致パターンを生成する。
// 入力中の%と_はワイルドカードとして扱わない。
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// intsToInt64s はINTEGER[]パラメータ用に[]intを変換する。
func intsToInt64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// nonNilInt64s はNOT NULLな配列カラムに渡すためnilを空スライスに置き換える。
func nonNilInt64s(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

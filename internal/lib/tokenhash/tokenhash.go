// Package tokenhash генерирует случайные непрозрачные значения и их ключевые дайджесты.
//
// Одноразовые токены хранятся только в виде дайджеста, поэтому утечка хранилища
// не позволяет войти по ещё не использованной ссылке.
package tokenhash

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size длина случайного значения в байтах
const Size = 32

// ErrEmptyKey возвращается при пустом ключе дайджеста.
var ErrEmptyKey = errors.New("tokenhash: empty key")

// Hasher вычисляет keyed BLAKE2b-256 дайджест токена.
type Hasher struct {
	key []byte
}

// New создаёт Hasher. Ключ длиннее 64 байт сжимается.
func New(key string) (*Hasher, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum512(k)
		k = sum[:]
	}
	return &Hasher{key: k}, nil
}

// Digest возвращает hex-дайджест токена.
func (h *Hasher) Digest(token string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// длина ключа проверена в New
		panic(err)
	}
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Random возвращает base64url строку из Size случайных байт.
func Random() (string, error) {
	const op = "tokenhash.Random"
	b := make([]byte, Size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

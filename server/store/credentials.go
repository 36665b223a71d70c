// Copyright (C) 2024 Christian Rößner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package store keeps the state of the target: password credentials and refresh token families.
package store

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Argon2Params tune the argon2id key derivation.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// User is one registered account.
type User struct {
	TenantID string
	UserID   string
	Email    string

	salt []byte
	hash []byte
}

// Credentials is an in-memory account store keyed by tenant and normalized email.
type Credentials struct {
	mu     sync.RWMutex
	users  map[string]*User
	params Argon2Params
}

func NewCredentials(params Argon2Params) *Credentials {
	return &Credentials{users: make(map[string]*User), params: params}
}

func credentialKey(tenantID, email string) string {
	return tenantID + "\x00" + strings.ToLower(strings.TrimSpace(email))
}

// Hash derives the argon2id hash of password with a new random salt. It is the expensive step guarded by the hash
// limiter.
func (c *Credentials) Hash(password string) (salt, hash []byte, err error) {
	salt = make([]byte, 16)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, err
	}

	return salt, c.derive(password, salt), nil
}

func (c *Credentials) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, c.params.Time, c.params.Memory, c.params.Threads, c.params.KeyLen)
}

// Add stores a user whose password was hashed with Hash.
func (c *Credentials) Add(tenantID, userID, email string, salt, hash []byte) error {
	key := credentialKey(tenantID, email)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.users[key]; ok {
		return ErrUserExists
	}

	c.users[key] = &User{TenantID: tenantID, UserID: userID, Email: email, salt: salt, hash: hash}

	return nil
}

// Exists reports whether the email is taken in the tenant.
func (c *Credentials) Exists(tenantID, email string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.users[credentialKey(tenantID, email)]

	return ok
}

// Verify checks the password. Unknown users cost the same hash computation as known ones.
func (c *Credentials) Verify(tenantID, email, password string) (User, error) {
	c.mu.RLock()
	u, ok := c.users[credentialKey(tenantID, email)]
	c.mu.RUnlock()

	if !ok {
		c.derive(password, make([]byte, 16))

		return User{}, ErrInvalidCredentials
	}

	if subtle.ConstantTimeCompare(c.derive(password, u.salt), u.hash) != 1 {
		return User{}, ErrInvalidCredentials
	}

	return User{TenantID: u.TenantID, UserID: u.UserID, Email: u.Email}, nil
}

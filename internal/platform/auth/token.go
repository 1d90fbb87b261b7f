package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role はアクセス権限の閉じた列挙。自由文字列で持ち回らないこと。
type Role string

const (
	RoleStaff    Role = "staff"
	RoleBorrower Role = "borrower"
)

var ErrInvalidToken = errors.New("invalid token")

// ParseRole validates a raw role tag against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStaff:
		return RoleStaff, nil
	case RoleBorrower:
		return RoleBorrower, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity はトークンに載せる本人情報。
type Identity struct {
	ID    int64
	Email string
	Role  Role
}

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl}
}

func (s *Signer) Sign(id Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   fmt.Sprintf("%d", id.ID),
		"email": id.Email,
		"role":  string(id.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// Verify parses and validates a signed token and returns the carried identity.
func (s *Signer) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, ErrInvalidToken
	}
	var id int64
	if _, err := fmt.Sscanf(sub, "%d", &id); err != nil || id <= 0 {
		return Identity{}, ErrInvalidToken
	}

	roleStr, _ := claims["role"].(string)
	role, err := ParseRole(roleStr)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)

	return Identity{ID: id, Email: email, Role: role}, nil
}

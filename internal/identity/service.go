package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"

	"libris-backend/internal/platform/auth"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
)

const minPasswordLen = 8

type Service struct {
	store  AccountStore
	signer *auth.Signer
}

func NewService(db *sql.DB, signer *auth.Signer) *Service {
	return &Service{store: NewStore(db), signer: signer}
}

// NewServiceWithStore はテスト用の差し替え口。
func NewServiceWithStore(store AccountStore, signer *auth.Signer) *Service {
	return &Service{store: store, signer: signer}
}

func (s *Service) Register(ctx context.Context, role auth.Role, req RegisterRequest) (*IdentityResponse, error) {
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 || len(name) > 100 {
		return nil, ErrInvalidInput
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrInvalidInput
	}

	exists, err := s.store.GetByEmail(ctx, role, req.Email)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := &Account{Name: name, Email: req.Email, PasswordHash: string(hash)}
	if err := s.store.Create(ctx, role, a); err != nil {
		// 事前チェックとINSERTの間に割り込まれた場合はUNIQUE制約で拾う
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return &IdentityResponse{ID: a.ID, Name: a.Name, Email: a.Email}, nil
}

func (s *Service) Login(ctx context.Context, role auth.Role, req LoginRequest) (string, error) {
	acct, err := s.store.GetByEmail(ctx, role, req.Email)
	if err != nil {
		return "", err
	}
	if acct == nil {
		// 未登録とパスワード不一致は呼び出し側から区別できないようにする
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.signer.Sign(auth.Identity{ID: acct.ID, Email: acct.Email, Role: role})
}

func (s *Service) List(ctx context.Context, role auth.Role) ([]IdentityResponse, error) {
	accts, err := s.store.List(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]IdentityResponse, 0, len(accts))
	for _, a := range accts {
		out = append(out, IdentityResponse{ID: a.ID, Name: a.Name, Email: a.Email})
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, role auth.Role, id int64) (*IdentityResponse, error) {
	acct, err := s.store.GetByID(ctx, role, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	return &IdentityResponse{ID: acct.ID, Name: acct.Name, Email: acct.Email}, nil
}

// Update: 部分更新。password が来たときだけ再ハッシュする。
func (s *Service) Update(ctx context.Context, role auth.Role, id int64, req UpdateAccountRequest) (*IdentityResponse, error) {
	acct, err := s.store.GetByID(ctx, role, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 || len(name) > 100 {
			return nil, ErrInvalidInput
		}
		acct.Name = name
	}
	if req.Email != nil {
		acct.Email = *req.Email
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLen {
			return nil, ErrInvalidInput
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		acct.PasswordHash = string(hash)
	}

	n, err := s.store.Update(ctx, role, acct)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return &IdentityResponse{ID: acct.ID, Name: acct.Name, Email: acct.Email}, nil
}

func (s *Service) Delete(ctx context.Context, role auth.Role, id int64) error {
	n, err := s.store.Delete(ctx, role, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

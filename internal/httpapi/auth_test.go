package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tokoledger/backend/internal/domain"
)

type userStoreStub struct {
	mu    sync.Mutex
	users []domain.UserAccount
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].Username == username {
			s.users[i].Password = password
		}
	}
	return nil
}

func (s *userStoreStub) storedPassword(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return user.Password
		}
	}
	return ""
}

func newStubManager(users ...domain.UserAccount) (*AuthManager, *userStoreStub) {
	stub := &userStoreStub{users: users}
	return NewAuthManager("auth-test-secret-0123456789abcdef", time.Hour, stub), stub
}

func TestLoginSuccess(t *testing.T) {
	manager, _ := newStubManager(domain.UserAccount{
		Username: "owner",
		Password: "owner123",
		Role:     "owner",
		ShopID:   "main-shop",
		Active:   true,
	})

	resp, err := manager.Login(domain.LoginRequest{Username: "Owner", Password: "owner123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected token")
	}
	if resp.Role != "owner" || resp.ShopID != "main-shop" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	manager, _ := newStubManager(domain.UserAccount{
		Username: "owner",
		Password: "owner123",
		Role:     "owner",
		ShopID:   "main-shop",
		Active:   true,
	})

	if _, err := manager.Login(domain.LoginRequest{Username: "owner", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "ghost", Password: "owner123"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	manager, _ := newStubManager(domain.UserAccount{
		Username: "bekas",
		Password: "rahasia1",
		Role:     "staff",
		ShopID:   "main-shop",
		Active:   false,
	})

	if _, err := manager.Login(domain.LoginRequest{Username: "bekas", Password: "rahasia1"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestBootstrapUpgradesPlainPasswords(t *testing.T) {
	manager, stub := newStubManager(domain.UserAccount{
		Username: "warisan",
		Password: "plaintext1",
		Role:     "staff",
		ShopID:   "main-shop",
		Active:   true,
	})

	if _, err := manager.Login(domain.LoginRequest{Username: "warisan", Password: "plaintext1"}); err != nil {
		t.Fatalf("login with legacy password: %v", err)
	}

	stored := stub.storedPassword("warisan")
	if !isPasswordHash(stored) {
		t.Fatalf("expected stored password upgraded to bcrypt, got %q", stored)
	}
	if stored == "plaintext1" {
		t.Fatalf("plain password survived bootstrap")
	}

	// The hashed credential still authenticates.
	if _, err := manager.Login(domain.LoginRequest{Username: "warisan", Password: "plaintext1"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager, _ := newStubManager(domain.UserAccount{
		Username: "staff",
		Password: "staff123",
		Role:     "staff",
		ShopID:   "toko-dua",
		Active:   true,
	})

	resp, err := manager.Login(domain.LoginRequest{Username: "staff", Password: "staff123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "staff" || actor.Role != "staff" || actor.ShopID != "toko-dua" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	account := domain.UserAccount{
		Username: "staff",
		Password: "staff123",
		Role:     "staff",
		ShopID:   "main-shop",
		Active:   true,
	}
	managerA, _ := newStubManager(account)
	managerB := NewAuthManager("a-completely-different-secret-value", time.Hour, &userStoreStub{})

	resp, err := managerA.Login(domain.LoginRequest{Username: "staff", Password: "staff123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := managerB.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed elsewhere to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager, _ := newStubManager()
	token, err := manager.sign("staff", "staff", "main-shop", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateStaffValidation(t *testing.T) {
	manager, stub := newStubManager()

	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "ab", Password: "rahasia1"}, "main-shop"); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "kasir baru", Password: "rahasia1"}, "main-shop"); err == nil {
		t.Fatalf("expected username with spaces to be rejected")
	}
	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "kasir2", Password: "12345"}, "main-shop"); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	staff, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "Kasir2", Password: "rahasia1"}, "main-shop")
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if staff.Username != "kasir2" || staff.Role != "staff" || !staff.Active {
		t.Fatalf("unexpected staff: %+v", staff)
	}

	if _, err := manager.CreateStaff(domain.StaffCreateRequest{Username: "kasir2", Password: "rahasia1"}, "main-shop"); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	// The account was persisted with a hash, never the raw password.
	stored := stub.storedPassword("kasir2")
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %q", stored)
	}
}

func TestListStaffFiltersByShop(t *testing.T) {
	manager, _ := newStubManager(
		domain.UserAccount{Username: "owner", Password: "owner123", Role: "owner", ShopID: "main-shop", Active: true},
		domain.UserAccount{Username: "kasir-a", Password: "rahasia1", Role: "staff", ShopID: "main-shop", Active: true},
		domain.UserAccount{Username: "kasir-b", Password: "rahasia1", Role: "staff", ShopID: "toko-dua", Active: true},
	)

	staff := manager.ListStaff("main-shop")
	if len(staff) != 1 || staff[0].Username != "kasir-a" {
		t.Fatalf("expected only main-shop staff, got %+v", staff)
	}
}

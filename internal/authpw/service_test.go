package authpw

import (
	"context"
	"errors"
	"testing"

	"orgflow/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
	tokenIndex map[string]string // verification token -> userID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		tokenIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) InsertUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	if user.VerificationToken != "" {
		m.tokenIndex[user.VerificationToken] = user.ID
	}
	return nil
}

func (m *mockUserStore) FindUserByVerificationToken(ctx context.Context, token string) (store.User, error) {
	if userID, ok := m.tokenIndex[token]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("invalid token")
}

func (m *mockUserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	user, ok := m.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	user.IsEmailVerified = true
	delete(m.tokenIndex, user.VerificationToken)
	user.VerificationToken = ""
	m.users[userID] = user
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Test User",
			Position:    "Engineer",
		})
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if resp.UserID == "" {
			t.Error("expected user ID")
		}
		if resp.VerificationToken == "" {
			t.Error("expected verification token")
		}
		if !resp.RequiresEmailVerify {
			t.Error("expected RequiresEmailVerify")
		}
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Another User",
		})
		if err == nil {
			t.Error("expected error for duplicate email")
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "short@example.com",
			Password:    "short",
			DisplayName: "Short",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "x@example.com"})
		if err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	signUp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "signin@example.com",
		Password:    "password123",
		DisplayName: "Sign In",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	t.Run("unverified user prompted to verify", func(t *testing.T) {
		resp, err := svc.SignIn(ctx, SignInRequest{
			Email:    "signin@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		if !resp.RequiresVerify {
			t.Error("expected RequiresVerify for unverified user")
		}
	})

	if err := svc.VerifyEmail(ctx, signUp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	t.Run("verified user signs in", func(t *testing.T) {
		resp, err := svc.SignIn(ctx, SignInRequest{
			Email:    "signin@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		if resp.RequiresVerify {
			t.Error("verified user should not require verification")
		}
		if resp.User.ID != signUp.UserID {
			t.Errorf("expected user %s, got %s", signUp.UserID, resp.User.ID)
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{
			Email:    "signin@example.com",
			Password: "wrong-password",
		}); err == nil {
			t.Error("expected error for wrong password")
		}
	})

	t.Run("unknown email rejected", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{
			Email:    "nobody@example.com",
			Password: "password123",
		}); err == nil {
			t.Error("expected error for unknown email")
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("empty token rejected", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, ""); err == nil {
			t.Error("expected error for empty token")
		}
	})

	t.Run("unknown token rejected", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, "bogus"); err == nil {
			t.Error("expected error for unknown token")
		}
	})

	t.Run("token is single use", func(t *testing.T) {
		signUp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "once@example.com",
			Password:    "password123",
			DisplayName: "Once",
		})
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if err := svc.VerifyEmail(ctx, signUp.VerificationToken); err != nil {
			t.Fatalf("first verify failed: %v", err)
		}
		if err := svc.VerifyEmail(ctx, signUp.VerificationToken); err == nil {
			t.Error("expected error for reused token")
		}
	})
}

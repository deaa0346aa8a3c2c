package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediafav/internal/model"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	db := setupRepoDB(t)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")

	got, err := NewPostgresUserRepo(db).FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got == nil || got.Username != "alice" {
		t.Fatalf("FindByID = %+v, want username alice", got)
	}

	identity, err := NewPostgresIdentityRepo(db).FindByProviderAndProviderUserID(ctx, model.ProviderPassword, "alice")
	if err != nil {
		t.Fatalf("FindByProviderAndProviderUserID returned error: %v", err)
	}
	if identity == nil || identity.UserID != user.ID || identity.SecretHash != "hash" {
		t.Errorf("identity = %+v, want user %s with hash", identity, user.ID)
	}
}

func TestPostgresUserRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db := setupRepoDB(t)

	got, err := NewPostgresUserRepo(db).FindByID(context.Background(), uuid.New().String())
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got != nil {
		t.Errorf("FindByID = %+v, want nil", got)
	}
}

func TestPostgresUserRepo_CreateWithIdentity_DuplicateUsername(t *testing.T) {
	db := setupRepoDB(t)
	createTestUser(t, db, "bob")

	now := time.Now()
	user := &model.User{ID: uuid.New().String(), Username: "bob", CreatedAt: now, UpdatedAt: now}
	identity := &model.Identity{
		ID: uuid.New().String(), UserID: user.ID, Provider: model.ProviderPassword,
		ProviderUserID: "bob", SecretHash: "hash", CreatedAt: now,
	}
	err := NewPostgresUserRepo(db).CreateWithIdentity(context.Background(), user, identity)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateWithIdentity error = %v, want ErrDuplicate", err)
	}
}

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := setupRepoDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "carol")
	repo := NewPostgresSessionRepo(db)

	now := time.Now()
	active := &model.Session{ID: "active", UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{ID: "expired", UserID: user.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
	for _, s := range []*model.Session{active, expired} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create(%s) returned error: %v", s.ID, err)
		}
	}

	if got, _ := repo.FindByID(ctx, "expired"); got != nil {
		t.Errorf("FindByID(expired) = %+v, want nil", got)
	}
	if got, _ := repo.FindByID(ctx, "active"); got == nil {
		t.Error("FindByID(active) = nil, want session")
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired = %d, want 1", n)
	}

	if err := repo.DeleteByUserID(ctx, user.ID); err != nil {
		t.Fatalf("DeleteByUserID returned error: %v", err)
	}
	if got, _ := repo.FindByID(ctx, "active"); got != nil {
		t.Errorf("FindByID(active) after DeleteByUserID = %+v, want nil", got)
	}
}

func TestPostgresUserRepo_DeleteByID_NotFound(t *testing.T) {
	db := setupRepoDB(t)

	if err := NewPostgresUserRepo(db).DeleteByID(context.Background(), uuid.New().String()); err == nil {
		t.Error("expected error for missing user, got nil")
	}
}

func TestIsUniqueViolation_NonPQError(t *testing.T) {
	if isUniqueViolation(errors.New("plain")) {
		t.Error("isUniqueViolation(plain error) = true, want false")
	}
	if isUniqueViolation(nil) {
		t.Error("isUniqueViolation(nil) = true, want false")
	}
}

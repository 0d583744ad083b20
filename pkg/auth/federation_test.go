package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFederator_CreatesOnFirstLogin(t *testing.T) {
	store := newMemIdentityStore()
	federator := NewFederator(store)
	ctx := context.Background()

	identity, err := federator.ResolveOrCreate(ctx, "github", "1234", ExternalProfile{
		Email: "Octo@Example.com",
		Name:  "Octo Cat",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.Equal(t, "Octo Cat", identity.Name)
	assert.Equal(t, RoleUser, identity.Role)
	assert.False(t, identity.HasCredential())
	assert.True(t, identity.IsFederated())

	again, err := federator.ResolveOrCreate(ctx, "github", "1234", ExternalProfile{
		Email: "changed@example.com",
		Name:  "Changed",
	})
	require.NoError(t, err)
	assert.Equal(t, identity.ID, again.ID)
	assert.Equal(t, "Octo Cat", again.Name, "existing profile is returned untouched")
}

func TestFederator_DefaultsName(t *testing.T) {
	federator := NewFederator(newMemIdentityStore())
	identity, err := federator.ResolveOrCreate(context.Background(), "google", "g-1", ExternalProfile{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob", identity.Name)
}

func TestFederator_Validation(t *testing.T) {
	federator := NewFederator(newMemIdentityStore())
	ctx := context.Background()

	_, err := federator.ResolveOrCreate(ctx, "", "1", ExternalProfile{Email: "a@example.com"})
	assert.True(t, IsKind(err, KindValidation))

	_, err = federator.ResolveOrCreate(ctx, "github", " ", ExternalProfile{Email: "a@example.com"})
	assert.True(t, IsKind(err, KindValidation))

	_, err = federator.ResolveOrCreate(ctx, "github", "1", ExternalProfile{})
	assert.True(t, IsKind(err, KindValidation))
}

func TestFederator_ConcurrentFirstLoginConverges(t *testing.T) {
	store := newMemIdentityStore()
	federator := NewFederator(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, err := federator.ResolveOrCreate(ctx, "github", "race", ExternalProfile{Email: "race@example.com"})
			if assert.NoError(t, err) {
				ids <- identity.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		assert.Equal(t, first, id)
	}
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFederator_LostRaceRereadsWinner(t *testing.T) {
	store := newMemIdentityStore()
	federator := NewFederator(store)
	ctx := context.Background()

	winner := &Identity{Email: "race@example.com", Name: "winner", Role: RoleUser, Provider: "github", ProviderSubject: "42"}
	store.createHook = func() {
		store.createHook = nil
		require.NoError(t, store.Create(ctx, winner))
	}

	identity, err := federator.ResolveOrCreate(ctx, "github", "42", ExternalProfile{Email: "race@example.com"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, identity.ID)
	assert.Equal(t, "winner", identity.Name)
}

func TestFederator_EmailCollision(t *testing.T) {
	ctx := context.Background()

	newStoreWithPasswordAccount := func(t *testing.T) (*memIdentityStore, *Identity) {
		store := newMemIdentityStore()
		existing := &Identity{Email: "carol@example.com", Name: "carol", Role: RoleAdmin, CredentialHash: "$2a$04$hash"}
		require.NoError(t, store.Create(ctx, existing))
		return store, existing
	}

	t.Run("verified email links the account", func(t *testing.T) {
		store, existing := newStoreWithPasswordAccount(t)
		federator := NewFederator(store)

		identity, err := federator.ResolveOrCreate(ctx, "google", "g-9", ExternalProfile{
			Email:         "carol@example.com",
			EmailVerified: true,
		})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, identity.ID)
		assert.Equal(t, RoleAdmin, identity.Role)
		assert.True(t, identity.HasCredential())
		assert.Equal(t, "google", identity.Provider)

		again, err := federator.ResolveOrCreate(ctx, "google", "g-9", ExternalProfile{Email: "carol@example.com"})
		require.NoError(t, err)
		assert.Equal(t, existing.ID, again.ID)
	})

	t.Run("unverified email is refused", func(t *testing.T) {
		store, _ := newStoreWithPasswordAccount(t)
		federator := NewFederator(store)

		_, err := federator.ResolveOrCreate(ctx, "google", "g-9", ExternalProfile{Email: "carol@example.com"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("account already linked elsewhere", func(t *testing.T) {
		store, existing := newStoreWithPasswordAccount(t)
		linked, err := store.LinkProvider(ctx, existing.ID, "github", "gh-1")
		require.NoError(t, err)
		require.True(t, linked)
		federator := NewFederator(store)

		_, err = federator.ResolveOrCreate(ctx, "google", "g-9", ExternalProfile{
			Email:         "carol@example.com",
			EmailVerified: true,
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestFederator_StoreFailure(t *testing.T) {
	store := newMemIdentityStore()
	store.failWith = Transient("database unavailable", nil)
	federator := NewFederator(store)

	_, err := federator.ResolveOrCreate(context.Background(), "github", "1", ExternalProfile{Email: "a@example.com"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransient))
}

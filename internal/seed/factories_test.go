package seed

import (
	"testing"
	"time"

	"hearth/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestFactory(t *testing.T, opts Options) *Factory {
	t.Helper()
	opts.SkipBcrypt = true
	f, err := NewFactory(opts)
	require.NoError(t, err)
	return f
}

func TestFactory_PasswordMatchesDefault(t *testing.T) {
	f := newTestFactory(t, Options{RandSeed: 7})

	require.NoError(t, validation.ValidatePassword(DefaultPassword))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.PasswordHash()), []byte(DefaultPassword)))

	u := f.BuildUser("alice1")
	assert.Equal(t, f.PasswordHash(), u.Password)
	assert.Equal(t, "alice1@example.com", u.Email)
	assert.NotEmpty(t, u.Name)
}

func TestFactory_UsernamesAreValidAndDistinct(t *testing.T) {
	f := newTestFactory(t, Options{RandSeed: 11})

	seen := map[string]struct{}{}
	for i := 1; i <= 500; i++ {
		name := f.Username(i)
		require.NoError(t, validation.ValidateUsername(name), name)
		_, dup := seen[name]
		require.False(t, dup, "duplicate username %s", name)
		seen[name] = struct{}{}
	}
}

func TestFactory_GroupNamesAreValid(t *testing.T) {
	f := newTestFactory(t, Options{RandSeed: 3})
	for i := 0; i < 100; i++ {
		g := f.BuildGroup(1)
		require.NoError(t, validation.ValidateGroupName(g.Name), g.Name)
		assert.Equal(t, uint(1), g.CreatorID)
	}
}

func TestFactory_PostTimestampsWithinWindow(t *testing.T) {
	f := newTestFactory(t, Options{RandSeed: 5, MaxDays: 30})

	groupID := uint(9)
	for i := 0; i < 200; i++ {
		p := f.BuildPost(4, &groupID)
		require.NoError(t, validation.ValidateContent("content", p.Content, validation.MaxPostLength))
		assert.Equal(t, uint(4), p.UserID)
		assert.Equal(t, &groupID, p.GroupID)
		assert.LessOrEqual(t, time.Since(p.CreatedAt), 31*24*time.Hour)
		assert.False(t, p.CreatedAt.After(time.Now().Add(time.Second)))
	}
}

func TestFactory_Pick(t *testing.T) {
	f := newTestFactory(t, Options{RandSeed: 1})
	ids := []uint{1, 2, 3, 4, 5}

	t.Run("distinct and excludes skip", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			got := f.Pick(ids, 3, 2)
			require.Len(t, got, 3)
			assert.NotContains(t, got, uint(2))
			seen := map[uint]bool{}
			for _, id := range got {
				assert.False(t, seen[id])
				seen[id] = true
			}
		}
	})

	t.Run("caps at pool size", func(t *testing.T) {
		assert.Len(t, f.Pick(ids, 10, 1), 4)
		assert.Empty(t, f.Pick(ids, 0, 0))
		assert.Empty(t, f.Pick(nil, 3, 0))
	})

	t.Run("does not reorder input", func(t *testing.T) {
		f.Pick(ids, 5, 0)
		assert.Equal(t, []uint{1, 2, 3, 4, 5}, ids)
	})
}

func TestFactory_SameSeedSameContent(t *testing.T) {
	a := newTestFactory(t, Options{RandSeed: 42})
	b := newTestFactory(t, Options{RandSeed: 42})
	assert.Equal(t, a.Username(1), b.Username(1))
	assert.Equal(t, a.MessageText(), b.MessageText())
}

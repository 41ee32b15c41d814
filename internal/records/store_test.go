package records

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/models"
)

// runStoreSuite exercises the Store contract against one backend.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := open(t)
		created, err := s.Create(ctx, models.Superhero{
			Nickname:    "Superman",
			RealName:    "Clark Kent",
			Superpowers: []string{"flight", "heat vision"},
			CatchPhrase: "Up, up and away",
			Images:      []string{"http://img/1.jpg"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Superman", got.Nickname)
		assert.Equal(t, []string{"flight", "heat vision"}, got.Superpowers)
		assert.Equal(t, []string{"http://img/1.jpg"}, got.Images)
		assert.Equal(t, "", got.OriginDescription)
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "nope")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("nil slices come back empty", func(t *testing.T) {
		s := open(t)
		created, err := s.Create(ctx, models.Superhero{Nickname: "Flash"})
		require.NoError(t, err)
		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Superpowers)
		assert.NotNil(t, got.Images)
	})

	t.Run("update replaces fields and appends images", func(t *testing.T) {
		s := open(t)
		created, err := s.Create(ctx, models.Superhero{
			Nickname:    "Nightcrawler",
			Superpowers: []string{"teleport"},
			Images:      []string{"u1", "u2"},
		})
		require.NoError(t, err)

		updated, err := s.Update(ctx, created.ID, models.Fields{
			Nickname:    "Kurt",
			Superpowers: []string{"agility"},
		}, []string{"u3"})
		require.NoError(t, err)
		assert.Equal(t, "Kurt", updated.Nickname)
		assert.Equal(t, []string{"agility"}, updated.Superpowers)
		assert.Equal(t, []string{"u1", "u2", "u3"}, updated.Images)
		assert.Equal(t, created.ID, updated.ID)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2", "u3"}, got.Images)
		assert.Equal(t, created.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
	})

	t.Run("update missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Update(ctx, "nope", models.Fields{Nickname: "x"}, nil)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("remove image filters every match", func(t *testing.T) {
		s := open(t)
		created, err := s.Create(ctx, models.Superhero{
			Nickname: "Storm",
			Images:   []string{"a", "b", "a", "c"},
		})
		require.NoError(t, err)

		images, err := s.RemoveImage(ctx, created.ID, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, images)

		images, err = s.RemoveImage(ctx, created.ID, "zzz")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, images)

		_, err = s.RemoveImage(ctx, "nope", "a")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		created, err := s.Create(ctx, models.Superhero{Nickname: "Rogue"})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, created.ID))
		_, err = s.Get(ctx, created.ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))

		err = s.Delete(ctx, created.ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("list newest first with window", func(t *testing.T) {
		s := open(t)
		var ids []string
		for _, name := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
			h, err := s.Create(ctx, models.Superhero{Nickname: name})
			require.NoError(t, err)
			ids = append(ids, h.ID)
			time.Sleep(time.Millisecond)
		}

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, n)

		first, err := s.List(ctx, 0, 5)
		require.NoError(t, err)
		require.Len(t, first, 5)
		assert.Equal(t, "seven", first[0].Nickname)
		assert.Equal(t, "three", first[4].Nickname)

		second, err := s.List(ctx, 5, 5)
		require.NoError(t, err)
		require.Len(t, second, 2)
		assert.Equal(t, "two", second[0].Nickname)
		assert.Equal(t, ids[0], second[1].ID)

		empty, err := s.List(ctx, 10, 5)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("concurrent append and remove keep both changes", func(t *testing.T) {
		s := open(t)
		for i := range 25 {
			created, err := s.Create(ctx, models.Superhero{Nickname: "Storm", Images: []string{"a", "b"}})
			require.NoError(t, err)

			var wg sync.WaitGroup
			var updErr, rmErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, updErr = s.Update(ctx, created.ID, models.Fields{Nickname: "Storm"}, []string{"c"})
			}()
			go func() {
				defer wg.Done()
				_, rmErr = s.RemoveImage(ctx, created.ID, "b")
			}()
			wg.Wait()
			require.NoError(t, updErr, "run %d", i)
			require.NoError(t, rmErr, "run %d", i)

			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c"}, got.Images, "run %d", i)
		}
	})

	t.Run("count empty", func(t *testing.T) {
		s := open(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

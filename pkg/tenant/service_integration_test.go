//go:build integration

package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/dbtest"
)

func TestPostgresService_ConcurrentSetDefault(t *testing.T) {
	ctx := context.Background()
	db := dbtest.OpenPostgres(t)
	s := NewPostgresService(db, nil)

	ids := make([]int64, 8)
	for i := range ids {
		c := &Company{Name: "Firma " + string(rune('A'+i))}
		require.NoError(t, s.Create(ctx, c))
		ids[i] = c.ID
	}

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		errs := make(chan error, len(ids))
		for _, id := range ids {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				errs <- s.SetDefault(ctx, id)
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM companies WHERE is_default").Scan(&n))
		assert.Equal(t, 1, n, "round %d", round)
	}
}

func TestPostgresService_UniqueDefaultIndex(t *testing.T) {
	ctx := context.Background()
	db := dbtest.OpenPostgres(t)
	s := NewPostgresService(db, nil)

	a, b := &Company{Name: "A"}, &Company{Name: "B"}
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, s.SetDefault(ctx, a.ID))

	// a naive set without clearing the others must be refused by the index
	_, err := db.ExecContext(ctx, "UPDATE companies SET is_default = TRUE WHERE id = $1", b.ID)
	assert.Error(t, err)
}

package jsonfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
	apperrors "github.com/nicolaspannunzio/backend-I/pkg/errors"
)

func newTestRepo(t *testing.T) *CartRepository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCartRepository(filepath.Join(t.TempDir(), "data"), "", logger)
}

func writeFile(t *testing.T, repo *CartRepository, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(repo.Path()), 0o755))
	require.NoError(t, os.WriteFile(repo.Path(), []byte(content), 0o644))
}

func readFile(t *testing.T, repo *CartRepository) string {
	t.Helper()
	data, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	return string(data)
}

// ---------------------------------------------------------------------------
// Load / Persist
// ---------------------------------------------------------------------------

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	carts := repo.Load(context.Background())

	require.NotNil(t, carts)
	assert.Empty(t, carts)
}

func TestLoad_MalformedFileIsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `{"data": [ {"id": 1, `)

	assert.Empty(t, repo.Load(context.Background()))
}

func TestLoad_WrongShapeIsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `[1, 2, 3]`)

	assert.Empty(t, repo.Load(context.Background()))
}

func TestLoad_MissingDataKeyIsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `{"other": []}`)

	carts := repo.Load(context.Background())
	require.NotNil(t, carts)
	assert.Empty(t, carts)
}

func TestLoad_NumericProductIDsAndNullProducts(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `{"data":[{"id":1,"products":[{"id":12,"quantity":2}]},{"id":2,"products":null}]}`)

	carts := repo.Load(context.Background())

	require.Len(t, carts, 2)
	assert.Equal(t, domain.ProductID("12"), carts[0].Products[0].ProductID)
	assert.NotNil(t, carts[1].Products)
	assert.Empty(t, carts[1].Products)
}

func TestLoad_IntegralFloatQuantity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	writeFile(t, repo, `{"data":[{"id":1,"products":[{"id":"A","quantity":2.0}]},{"id":2,"products":[{"id":"B","quantity":1}]}]}`)

	carts := repo.Load(ctx)
	require.Len(t, carts, 2)
	assert.Equal(t, []domain.CartItem{{ProductID: "A", Quantity: 2}}, carts[0].Products)

	cart, err := repo.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Products[0].Quantity)
	assert.Equal(t, domain.ProductID("B"), all[1].Products[0].ProductID)
}

func TestPersistThenLoad_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := []domain.Cart{
		{ID: 1, Products: []domain.CartItem{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: -1}}},
		{ID: 3, Products: []domain.CartItem{}},
		{ID: 2, Products: []domain.CartItem{{ProductID: "P9", Quantity: 0}}},
	}

	require.NoError(t, repo.Persist(ctx, want))

	assert.Equal(t, want, repo.Load(ctx))
}

func TestPersist_FileFormat(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Persist(context.Background(), []domain.Cart{
		{ID: 1, Products: []domain.CartItem{{ProductID: "P1", Quantity: 1}}},
	}))

	assert.JSONEq(t, `{"data":[{"id":1,"products":[{"id":"P1","quantity":1}]}]}`, readFile(t, repo))
	assert.Contains(t, readFile(t, repo), "\n  \"data\"")
}

func TestPersist_NilWritesEmptyArray(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Persist(context.Background(), nil))

	assert.JSONEq(t, `{"data":[]}`, readFile(t, repo))
}

func TestPersist_LeavesNoTempFiles(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Dir(repo.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultFileName, entries[0].Name())
}

func TestPersist_FailsWhenDataDirIsAFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))
	repo := NewCartRepository(dir, "carts.json", slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := repo.Create(context.Background())

	require.Error(t, err)
	assert.Error(t, repo.Ping(context.Background()))
}

// ---------------------------------------------------------------------------
// Create / List / GetByID
// ---------------------------------------------------------------------------

func TestCreate_SequentialIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for want := 1; want <= 5; want++ {
		cart, err := repo.Create(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, cart.ID)
		assert.NotNil(t, cart.Products)
		assert.Empty(t, cart.Products)
	}

	carts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, carts, 5)
	for i, c := range carts {
		assert.Equal(t, i+1, c.ID)
	}
}

func TestCreate_UsesMaxExistingID(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `{"data":[{"id":7,"products":[]},{"id":3,"products":[]}]}`)

	cart, err := repo.Create(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 8, cart.ID)
}

func TestCreate_OverMalformedFileStartsAtOne(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `not json`)

	cart, err := repo.Create(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, cart.ID)
	assert.JSONEq(t, `{"data":[{"id":1,"products":[]}]}`, readFile(t, repo))
}

func TestList_ReturnsCopy(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx)
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, 1, "P1")
	require.NoError(t, err)

	carts, err := repo.List(ctx)
	require.NoError(t, err)
	carts[0].Products[0].Quantity = 50

	again, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 1, again[0].Products[0].Quantity)
}

func TestList_SeesExternalChanges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx)
	require.NoError(t, err)

	writeFile(t, repo, `{"data":[{"id":1,"products":[]},{"id":2,"products":[]}]}`)

	carts, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, carts, 2)
}

func TestGetByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	writeFile(t, repo, `{"data":[{"id":1,"products":[]},{"id":2,"products":[{"id":"X","quantity":4}]}]}`)

	cart, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.ID)
	assert.Equal(t, []domain.CartItem{{ProductID: "X", Quantity: 4}}, cart.Products)

	missing, err := repo.GetByID(ctx, 3)
	assert.Nil(t, missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Item operations
// ---------------------------------------------------------------------------

func TestAddItem_NewThenIncrement(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx)
	require.NoError(t, err)

	cart, err := repo.AddItem(ctx, 1, "P1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: "P1", Quantity: 1}}, cart.Products)

	cart, err = repo.AddItem(ctx, 1, "P1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: "P1", Quantity: 2}}, cart.Products)

	cart, err = repo.AddItem(ctx, 1, "P2")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
	}, cart.Products)

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cart, stored)
}

func TestAddItem_OnlyTouchesTargetCart(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := repo.Create(ctx)
		require.NoError(t, err)
	}

	_, err := repo.AddItem(ctx, 2, "P1")
	require.NoError(t, err)

	first, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, first.Products)
}

func TestAddItem_CartNotFound(t *testing.T) {
	repo := newTestRepo(t)

	cart, err := repo.AddItem(context.Background(), 1, "P1")

	assert.Nil(t, cart)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	_, statErr := os.Stat(repo.Path())
	assert.True(t, os.IsNotExist(statErr), "failed operation must not write the file")
}

func TestRemoveItem(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	writeFile(t, repo, `{"data":[{"id":1,"products":[{"id":"A","quantity":1},{"id":"B","quantity":2},{"id":"C","quantity":3}]}]}`)

	cart, err := repo.RemoveItem(ctx, 1, "B")

	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: "A", Quantity: 1}, {ProductID: "C", Quantity: 3}}, cart.Products)
	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cart.Products, stored.Products)
}

func TestRemoveItem_ItemNotFoundLeavesCartUnchanged(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	original := `{"data":[{"id":1,"products":[{"id":"A","quantity":1}]}]}`
	writeFile(t, repo, original)

	cart, err := repo.RemoveItem(ctx, 1, "Z")

	assert.Nil(t, cart)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
	assert.NotErrorIs(t, err, domain.ErrCartNotFound)
	assert.Equal(t, original, readFile(t, repo))

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: "A", Quantity: 1}}, stored.Products)
}

func TestRemoveItem_CartNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.RemoveItem(context.Background(), 4, "A")

	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestReplaceItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	writeFile(t, repo, `{"data":[{"id":1,"products":[{"id":"A","quantity":1}]}]}`)

	items := []domain.CartItem{{ProductID: "X", Quantity: 5}, {ProductID: "X", Quantity: -2}}
	cart, err := repo.ReplaceItems(ctx, 1, items)

	require.NoError(t, err)
	assert.Equal(t, items, cart.Products)

	items[0].Quantity = 100
	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Products[0].Quantity)
	assert.Len(t, stored.Products, 2)
}

func TestReplaceItems_NilClearsCart(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	writeFile(t, repo, `{"data":[{"id":1,"products":[{"id":"A","quantity":1}]}]}`)

	cart, err := repo.ReplaceItems(ctx, 1, nil)

	require.NoError(t, err)
	assert.NotNil(t, cart.Products)
	assert.Empty(t, cart.Products)
	assert.JSONEq(t, `{"data":[{"id":1,"products":[]}]}`, readFile(t, repo))
}

func TestReplaceItems_CartNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.ReplaceItems(context.Background(), 1, []domain.CartItem{{ProductID: "A", Quantity: 1}})

	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestSetItemQuantity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	writeFile(t, repo, `{"data":[{"id":1,"products":[{"id":"A","quantity":1},{"id":"B","quantity":1}]}]}`)

	for _, qty := range []int{7, 0, -3} {
		cart, err := repo.SetItemQuantity(ctx, 1, "B", qty)
		require.NoError(t, err)
		assert.Equal(t, qty, cart.Products[1].Quantity)
		assert.Equal(t, 1, cart.Products[0].Quantity)
	}
}

func TestSetItemQuantity_CartNotFoundPerformsNoWrite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	original := `{"data":[{"id":1,"products":[{"id":"A","quantity":1}]}]}`
	writeFile(t, repo, original)
	before, err := os.Stat(repo.Path())
	require.NoError(t, err)

	_, err = repo.SetItemQuantity(ctx, 2, "A", 5)

	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	after, err := os.Stat(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.Equal(t, original, readFile(t, repo))
}

func TestSetItemQuantity_ItemNotFound(t *testing.T) {
	repo := newTestRepo(t)
	writeFile(t, repo, `{"data":[{"id":1,"products":[]}]}`)

	_, err := repo.SetItemQuantity(context.Background(), 1, "A", 5)

	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestMutate_CanceledContextDoesNotWrite(t *testing.T) {
	repo := newTestRepo(t)
	original := `{"data":[{"id":1,"products":[]}]}`
	writeFile(t, repo, original)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.AddItem(ctx, 1, "P1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, original, readFile(t, repo))
}

// ---------------------------------------------------------------------------
// Scenario and concurrency
// ---------------------------------------------------------------------------

func TestScenario_CreateAddAddRemove(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	carts, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, carts)

	cart, err := repo.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{ID: 1, Products: []domain.CartItem{}}, *cart)

	cart, err = repo.AddItem(ctx, 1, "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{ID: 1, Products: []domain.CartItem{{ProductID: "P1", Quantity: 1}}}, *cart)

	cart, err = repo.AddItem(ctx, 1, "P1")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Products[0].Quantity)

	cart, err = repo.RemoveItem(ctx, 1, "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{ID: 1, Products: []domain.CartItem{}}, *cart)
}

func TestConcurrentAddItem_NoLostUpdates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddItem(ctx, 1, "P1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cart.Products, 1)
	assert.Equal(t, workers, cart.Products[0].Quantity)
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assert.NoError(t, repo.Ping(ctx), "missing data dir is created on first write")

	_, err := repo.Create(ctx)
	require.NoError(t, err)
	assert.NoError(t, repo.Ping(ctx))
}

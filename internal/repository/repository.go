package repository

import (
	"context"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
)

// CartRepository defines cart persistence. Lookup failures are reported as
// domain.ErrCartNotFound / domain.ErrItemNotFound; a failed operation never
// changes stored state.
type CartRepository interface {
	// Create stores a new empty cart with the next free id.
	Create(ctx context.Context) (*domain.Cart, error)

	// List returns a copy of every stored cart.
	List(ctx context.Context) ([]domain.Cart, error)

	// GetByID returns the cart with the given id.
	GetByID(ctx context.Context, id int) (*domain.Cart, error)

	// AddItem adds one unit of productID, appending a new line if needed.
	AddItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error)

	// RemoveItem deletes the line for productID.
	RemoveItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error)

	// ReplaceItems swaps the cart's whole item list for items.
	ReplaceItems(ctx context.Context, cartID int, items []domain.CartItem) (*domain.Cart, error)

	// SetItemQuantity overwrites the quantity of an existing line.
	SetItemQuantity(ctx context.Context, cartID int, productID domain.ProductID, quantity int) (*domain.Cart, error)
}

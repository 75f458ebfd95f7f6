package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/nicolaspannunzio/backend-I/pkg/errors"
)

// Errors distinguishing the two lookup failures. Both match apperrors.ErrNotFound.
var (
	ErrCartNotFound = fmt.Errorf("cart %w", apperrors.ErrNotFound)
	ErrItemNotFound = fmt.Errorf("cart item %w", apperrors.ErrNotFound)
)

// ProductID identifies a product in the external catalog. It is opaque here:
// the store never checks it against the catalog.
//
// Numeric ids are held as their decimal text and always encoded as JSON
// strings, so a file written with numeric ids is normalized to string ids on
// the next write.
type ProductID string

// UnmarshalJSON accepts both JSON strings and JSON numbers, since carts files
// written by other tools carry either.
func (p *ProductID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("product id must be a string or a number: %w", err)
	}
	*p = ProductID(n.String())
	return nil
}

// CartItem is one product line in a cart.
type CartItem struct {
	ProductID ProductID `json:"id"`
	Quantity  int       `json:"quantity"`
}

// UnmarshalJSON accepts any integral JSON number for the quantity, including
// forms such as 2.0 or 2e0. Fractional or out-of-range quantities are rejected.
func (i *CartItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ProductID ProductID   `json:"id"`
		Quantity  json.Number `json:"quantity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	qty, err := parseQuantity(raw.Quantity)
	if err != nil {
		return err
	}
	*i = CartItem{ProductID: raw.ProductID, Quantity: qty}
	return nil
}

func parseQuantity(n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(string(n), 10, strconv.IntSize); err == nil {
		return int(v), nil
	}

	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("quantity %q is not a number: %w", n, err)
	}
	if f != math.Trunc(f) || f < math.MinInt || f >= math.MaxInt {
		return 0, fmt.Errorf("quantity %s is not an integer", n)
	}
	return int(f), nil
}

// Cart is a persisted, ordered collection of line items.
type Cart struct {
	ID       int        `json:"id"`
	Products []CartItem `json:"products"`
}

// NewCart returns an empty cart with the given id.
func NewCart(id int) Cart {
	return Cart{ID: id, Products: []CartItem{}}
}

// FindItemIndex returns the index of the line for productID, or -1.
func (c *Cart) FindItemIndex(productID ProductID) int {
	for i := range c.Products {
		if c.Products[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// ItemCount sums the quantities of all lines.
func (c *Cart) ItemCount() int {
	var n int
	for _, item := range c.Products {
		n += item.Quantity
	}
	return n
}

// Clone returns a deep copy. Products is never nil in the copy.
func (c Cart) Clone() Cart {
	products := make([]CartItem, len(c.Products))
	copy(products, c.Products)
	return Cart{ID: c.ID, Products: products}
}

// NextCartID returns max(id)+1 over carts, or 1 for an empty collection.
func NextCartID(carts []Cart) int {
	maxID := 0
	for _, c := range carts {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	return maxID + 1
}

// CartNotFound reports a missing cart.
func CartNotFound(id int) *apperrors.AppError {
	return apperrors.New("CART_NOT_FOUND", http.StatusNotFound,
		fmt.Sprintf("cart with id %d not found", id), ErrCartNotFound)
}

// ItemNotFound reports a product that has no line in an existing cart.
func ItemNotFound(cartID int, productID ProductID) *apperrors.AppError {
	return apperrors.New("ITEM_NOT_FOUND", http.StatusNotFound,
		fmt.Sprintf("product %s not found in cart %d", productID, cartID), ErrItemNotFound)
}

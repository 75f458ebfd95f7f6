package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
	"github.com/nicolaspannunzio/backend-I/internal/event"
	"github.com/nicolaspannunzio/backend-I/internal/repository"
	apperrors "github.com/nicolaspannunzio/backend-I/pkg/errors"
	"github.com/nicolaspannunzio/backend-I/pkg/logger"
)

// CartService implements the business logic for cart operations.
type CartService struct {
	repo      repository.CartRepository
	publisher event.Publisher
	logger    *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, publisher event.Publisher, logger *slog.Logger) *CartService {
	return &CartService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Create stores a new empty cart.
func (s *CartService) Create(ctx context.Context) (*domain.Cart, error) {
	cart, err := s.repo.Create(ctx)
	if err != nil {
		return nil, wrapRepoError("create cart", err)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "cart created",
		slog.Int("cart_id", cart.ID),
	)

	if err := s.publisher.PublishCartCreated(ctx, cart); err != nil {
		s.logPublishFailure(ctx, cart.ID, err)
	}

	return cart, nil
}

// List returns every cart.
func (s *CartService) List(ctx context.Context) ([]domain.Cart, error) {
	carts, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrapRepoError("list carts", err)
	}
	return carts, nil
}

// GetByID returns one cart.
func (s *CartService) GetByID(ctx context.Context, cartID int) (*domain.Cart, error) {
	if err := validateCartID(cartID); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, wrapRepoError("get cart", err)
	}
	return cart, nil
}

// AddItem adds one unit of a product to the cart.
func (s *CartService) AddItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error) {
	if err := validateItemRef(cartID, productID); err != nil {
		return nil, err
	}

	cart, err := s.repo.AddItem(ctx, cartID, productID)
	if err != nil {
		return nil, wrapRepoError("add item", err)
	}

	s.updated(ctx, cart, event.ActionItemAdded, productID)
	return cart, nil
}

// RemoveItem deletes a product line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error) {
	if err := validateItemRef(cartID, productID); err != nil {
		return nil, err
	}

	cart, err := s.repo.RemoveItem(ctx, cartID, productID)
	if err != nil {
		return nil, wrapRepoError("remove item", err)
	}

	s.updated(ctx, cart, event.ActionItemRemoved, productID)
	return cart, nil
}

// ReplaceItems swaps the cart's item list. Items are stored as given.
func (s *CartService) ReplaceItems(ctx context.Context, cartID int, items []domain.CartItem) (*domain.Cart, error) {
	if err := validateCartID(cartID); err != nil {
		return nil, err
	}

	cart, err := s.repo.ReplaceItems(ctx, cartID, items)
	if err != nil {
		return nil, wrapRepoError("replace items", err)
	}

	s.updated(ctx, cart, event.ActionItemsReplaced, "")
	return cart, nil
}

// SetItemQuantity overwrites the quantity of a product line.
func (s *CartService) SetItemQuantity(ctx context.Context, cartID int, productID domain.ProductID, quantity int) (*domain.Cart, error) {
	if err := validateItemRef(cartID, productID); err != nil {
		return nil, err
	}

	cart, err := s.repo.SetItemQuantity(ctx, cartID, productID, quantity)
	if err != nil {
		return nil, wrapRepoError("set item quantity", err)
	}

	s.updated(ctx, cart, event.ActionQuantitySet, productID)
	return cart, nil
}

// updated logs a successful mutation and publishes cart.updated.
func (s *CartService) updated(ctx context.Context, cart *domain.Cart, action string, productID domain.ProductID) {
	attrs := []any{
		slog.Int("cart_id", cart.ID),
		slog.String("action", action),
		slog.Int("item_count", cart.ItemCount()),
	}
	if productID != "" {
		attrs = append(attrs, slog.String("product_id", string(productID)))
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "cart updated", attrs...)

	if err := s.publisher.PublishCartUpdated(ctx, cart, action, productID); err != nil {
		s.logPublishFailure(ctx, cart.ID, err)
	}
}

func (s *CartService) logPublishFailure(ctx context.Context, cartID int, err error) {
	logger.WithContext(ctx, s.logger).WarnContext(ctx, "failed to publish cart event",
		slog.Int("cart_id", cartID),
		slog.String("error", err.Error()),
	)
}

// wrapRepoError adds op context. Errors the repository did not classify
// (I/O, encoding) become INTERNAL_ERROR so their cause stays out of responses.
func wrapRepoError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
}

func validateCartID(cartID int) error {
	if cartID <= 0 {
		return apperrors.InvalidInput("cart id must be a positive integer")
	}
	return nil
}

func validateItemRef(cartID int, productID domain.ProductID) error {
	if err := validateCartID(cartID); err != nil {
		return err
	}
	if productID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	return nil
}

package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
	"github.com/nicolaspannunzio/backend-I/pkg/breaker"
	pkgkafka "github.com/nicolaspannunzio/backend-I/pkg/kafka"
	"github.com/nicolaspannunzio/backend-I/pkg/logger"
)

// Kafka topic constants for cart domain events.
const (
	TopicCartCreated = "ecommerce.cart.created"
	TopicCartUpdated = "ecommerce.cart.updated"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from the cart service.
const SourceCartService = "cart-service"

// Action names carried by cart.updated events.
const (
	ActionItemAdded     = "item_added"
	ActionItemRemoved   = "item_removed"
	ActionItemsReplaced = "items_replaced"
	ActionQuantitySet   = "quantity_set"
)

// CartCreatedData is the payload for a cart.created event.
type CartCreatedData struct {
	CartID int `json:"cart_id"`
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartID    int            `json:"cart_id"`
	Action    string         `json:"action"`
	ProductID string         `json:"product_id,omitempty"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Publisher emits cart domain events.
type Publisher interface {
	PublishCartCreated(ctx context.Context, cart *domain.Cart) error
	PublishCartUpdated(ctx context.Context, cart *domain.Cart, action string, productID domain.ProductID) error
}

// Producer publishes cart domain events to Kafka through a circuit breaker.
type Producer struct {
	kafka   *pkgkafka.Producer
	breaker *breaker.Breaker
	logger  *slog.Logger
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka *pkgkafka.Producer, cb *breaker.Breaker, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:   kafka,
		breaker: cb,
		logger:  logger,
	}
}

// PublishCartCreated publishes a cart.created event.
func (p *Producer) PublishCartCreated(ctx context.Context, cart *domain.Cart) error {
	data := CartCreatedData{CartID: cart.ID}

	if err := p.publish(ctx, TopicCartCreated, cart.ID, data); err != nil {
		return fmt.Errorf("publish cart.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.created event",
		slog.Int("cart_id", cart.ID),
	)
	return nil
}

// PublishCartUpdated publishes a cart.updated event. productID is empty for
// actions that touch the whole item list.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart, action string, productID domain.ProductID) error {
	items := make([]CartItemData, len(cart.Products))
	for i, item := range cart.Products {
		items[i] = CartItemData{
			ProductID: string(item.ProductID),
			Quantity:  item.Quantity,
		}
	}

	data := CartUpdatedData{
		CartID:    cart.ID,
		Action:    action,
		ProductID: string(productID),
		Items:     items,
		ItemCount: cart.ItemCount(),
	}

	if err := p.publish(ctx, TopicCartUpdated, cart.ID, data); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.Int("cart_id", cart.ID),
		slog.String("action", action),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic string, cartID int, data any) error {
	event, err := pkgkafka.NewEvent(topic, strconv.Itoa(cartID), AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return err
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	return p.breaker.Run(ctx, func(ctx context.Context) error {
		return p.kafka.Publish(ctx, topic, event)
	})
}

// NopPublisher drops every event. It is used when Kafka is disabled.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// PublishCartCreated does nothing.
func (NopPublisher) PublishCartCreated(context.Context, *domain.Cart) error { return nil }

// PublishCartUpdated does nothing.
func (NopPublisher) PublishCartUpdated(context.Context, *domain.Cart, string, domain.ProductID) error {
	return nil
}

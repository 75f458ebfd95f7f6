// Package jsonfile stores carts in a single JSON file. Every operation reads
// the whole file, works on the decoded slice and rewrites the whole file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nicolaspannunzio/backend-I/internal/domain"
	apperrors "github.com/nicolaspannunzio/backend-I/pkg/errors"
	"github.com/nicolaspannunzio/backend-I/pkg/tracing"
)

// DefaultFileName is the name of the backing file inside the data directory.
const DefaultFileName = "carts.json"

const tracerName = "github.com/nicolaspannunzio/backend-I/internal/repository/jsonfile"

// document is the on-disk layout: {"data": [cart, ...]}.
type document struct {
	Data []domain.Cart `json:"data"`
}

// CartRepository implements repository.CartRepository on top of one JSON file.
type CartRepository struct {
	dir    string
	path   string
	logger *slog.Logger
	tracer trace.Tracer

	// mu serializes read-modify-write cycles within this process. Writers in
	// other processes are not coordinated: the last rename wins.
	mu sync.Mutex
}

// NewCartRepository returns a repository backed by dir/fileName. The
// directory and file are created on the first write.
func NewCartRepository(dir, fileName string, logger *slog.Logger) *CartRepository {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &CartRepository{
		dir:    dir,
		path:   filepath.Join(dir, fileName),
		logger: logger,
		tracer: tracing.Tracer(tracerName),
	}
}

// Path returns the backing file path.
func (r *CartRepository) Path() string {
	return r.path
}

// Load reads the backing file. A missing, unreadable or malformed file yields
// an empty collection; Load never fails.
func (r *CartRepository) Load(ctx context.Context) []domain.Cart {
	ctx, done := r.instrument(ctx, "load")
	carts := r.load(ctx)
	done(nil)
	return carts
}

// Persist overwrites the backing file with carts.
func (r *CartRepository) Persist(ctx context.Context, carts []domain.Cart) (err error) {
	ctx, done := r.instrument(ctx, "persist")
	defer func() { done(err) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persist(ctx, carts)
}

// Create appends an empty cart whose id is one above the highest stored id.
func (r *CartRepository) Create(ctx context.Context) (_ *domain.Cart, err error) {
	ctx, done := r.instrument(ctx, "create")
	defer func() { done(err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	carts := r.load(ctx)
	cart := domain.NewCart(domain.NextCartID(carts))
	carts = append(carts, cart)

	if err := r.persist(ctx, carts); err != nil {
		return nil, err
	}
	return &cart, nil
}

// List returns every stored cart. The result is freshly decoded, so callers
// may modify it freely.
func (r *CartRepository) List(ctx context.Context) ([]domain.Cart, error) {
	ctx, done := r.instrument(ctx, "list")
	carts := r.load(ctx)
	done(nil)
	return carts, nil
}

// GetByID returns the cart with the given id or a CartNotFound error.
func (r *CartRepository) GetByID(ctx context.Context, id int) (_ *domain.Cart, err error) {
	ctx, done := r.instrument(ctx, "get")
	defer func() { done(err) }()

	carts := r.load(ctx)
	idx := indexOf(carts, id)
	if idx < 0 {
		return nil, domain.CartNotFound(id)
	}
	return &carts[idx], nil
}

// AddItem adds one unit of productID: a new line with quantity 1, or +1 on
// the existing line.
func (r *CartRepository) AddItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error) {
	return r.mutate(ctx, "add_item", cartID, func(c *domain.Cart) error {
		if i := c.FindItemIndex(productID); i >= 0 {
			c.Products[i].Quantity++
			return nil
		}
		c.Products = append(c.Products, domain.CartItem{ProductID: productID, Quantity: 1})
		return nil
	})
}

// RemoveItem deletes the line for productID, keeping the order of the rest.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID int, productID domain.ProductID) (*domain.Cart, error) {
	return r.mutate(ctx, "remove_item", cartID, func(c *domain.Cart) error {
		i := c.FindItemIndex(productID)
		if i < 0 {
			return domain.ItemNotFound(cartID, productID)
		}
		c.Products = append(c.Products[:i], c.Products[i+1:]...)
		return nil
	})
}

// ReplaceItems swaps the item list for items as given. Nothing is validated.
func (r *CartRepository) ReplaceItems(ctx context.Context, cartID int, items []domain.CartItem) (*domain.Cart, error) {
	replacement := make([]domain.CartItem, len(items))
	copy(replacement, items)

	return r.mutate(ctx, "replace_items", cartID, func(c *domain.Cart) error {
		c.Products = replacement
		return nil
	})
}

// SetItemQuantity overwrites the quantity of an existing line. Zero and
// negative values are stored as given.
func (r *CartRepository) SetItemQuantity(ctx context.Context, cartID int, productID domain.ProductID, quantity int) (*domain.Cart, error) {
	return r.mutate(ctx, "set_quantity", cartID, func(c *domain.Cart) error {
		i := c.FindItemIndex(productID)
		if i < 0 {
			return domain.ItemNotFound(cartID, productID)
		}
		c.Products[i].Quantity = quantity
		return nil
	})
}

// Ping reports whether the data directory is usable: it must either be a
// directory or not exist yet.
func (r *CartRepository) Ping(_ context.Context) error {
	info, err := os.Stat(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", r.dir)
	}
	return nil
}

// mutate runs one locked read-modify-write cycle on a single cart. If fn
// fails, nothing is written.
func (r *CartRepository) mutate(ctx context.Context, op string, cartID int, fn func(*domain.Cart) error) (_ *domain.Cart, err error) {
	ctx, done := r.instrument(ctx, op)
	defer func() { done(err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	carts := r.load(ctx)
	idx := indexOf(carts, cartID)
	if idx < 0 {
		return nil, domain.CartNotFound(cartID)
	}
	if err := fn(&carts[idx]); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, carts); err != nil {
		return nil, err
	}

	updated := carts[idx].Clone()
	return &updated, nil
}

func (r *CartRepository) load(ctx context.Context) []domain.Cart {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.DebugContext(ctx, "carts file not found, starting empty",
				slog.String("path", r.path),
			)
			cartsStored.Set(0)
			return []domain.Cart{}
		}
		loadFailures.WithLabelValues("read").Inc()
		r.logger.WarnContext(ctx, "carts file unreadable, starting empty",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return []domain.Cart{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		loadFailures.WithLabelValues("parse").Inc()
		r.logger.WarnContext(ctx, "carts file malformed, starting empty",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return []domain.Cart{}
	}

	carts := doc.Data
	if carts == nil {
		carts = []domain.Cart{}
	}
	for i := range carts {
		if carts[i].Products == nil {
			carts[i].Products = []domain.CartItem{}
		}
	}
	cartsStored.Set(float64(len(carts)))
	return carts
}

// persist writes carts to a temp file in the data directory and renames it
// over the backing file, so readers see either the old or the new content.
func (r *CartRepository) persist(ctx context.Context, carts []domain.Cart) (err error) {
	if carts == nil {
		carts = []domain.Cart{}
	}

	data, err := json.MarshalIndent(document{Data: carts}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal carts: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp carts file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write carts file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close carts file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod carts file: %w", err)
	}
	if err = os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace carts file: %w", err)
	}

	cartsStored.Set(float64(len(carts)))
	r.logger.DebugContext(ctx, "carts file written",
		slog.String("path", r.path),
		slog.Int("carts", len(carts)),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// instrument starts a span for op and returns a func recording the outcome.
func (r *CartRepository) instrument(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "cartstore."+op,
		trace.WithAttributes(attribute.String("cartstore.path", r.path)),
	)

	return ctx, func(err error) {
		result := "ok"
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrNotFound):
			result = "not_found"
		default:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		operationsTotal.WithLabelValues(op, result).Inc()
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func indexOf(carts []domain.Cart, id int) int {
	for i := range carts {
		if carts[i].ID == id {
			return i
		}
	}
	return -1
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/catalog"
	"github.com/ariefcatur/go-pcparts-orders/internal/compat"
	"github.com/ariefcatur/go-pcparts-orders/internal/idem"
	"github.com/ariefcatur/go-pcparts-orders/internal/inventory"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultStoreTimeout bounds the order write, journal included.
const DefaultStoreTimeout = 2 * time.Second

// Ledger is the stock side of order placement.
type Ledger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(productID string, qty int) error
}

type Catalog interface {
	Get(id string) (catalog.Product, error)
}

// Publisher announces order events. Delivery is best effort.
type Publisher interface {
	PublishEvent(ctx context.Context, ev Envelope) error
}

// Coordinator places orders: validate, check parts, reserve stock per
// product, then record the order. Any failure after the first reservation
// releases what was reserved.
type Coordinator struct {
	Store        *Store
	Ledger       Ledger
	Validator    *compat.Validator
	Catalog      Catalog
	Idem         idem.Store
	Publisher    Publisher
	Service      string
	StoreTimeout time.Duration
	Now          func() time.Time
	NewID        func() string

	flight singleflight.Group
}

func NewCoordinator(store *Store, ledger Ledger, cat Catalog) *Coordinator {
	return &Coordinator{
		Store:        store,
		Ledger:       ledger,
		Validator:    compat.NewValidator(),
		Catalog:      cat,
		Idem:         idem.NewMemoryStore(idem.DefaultTTL),
		Service:      "order-api",
		StoreTimeout: DefaultStoreTimeout,
		Now:          time.Now,
		NewID:        uuid.NewString,
	}
}

type flightResult struct {
	conf        Confirmation
	fingerprint uint64
	replayed    bool
	claimed     atomic.Bool
}

// PlaceOrder places an order for already priced line items. With an
// idempotency key, a repeated call returns the first confirmation and
// replayed=true without touching stock again.
func (c *Coordinator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Confirmation, bool, error) {
	if err := validate(req); err != nil {
		return Confirmation{}, false, err
	}
	if req.IdempotencyKey == "" {
		conf, err := c.place(ctx, req, 0)
		return conf, false, err
	}

	// Only identical requests share a flight; a different payload under the
	// same key runs on its own and meets the first order in the store.
	fp := Fingerprint(req)
	flightKey := req.IdempotencyKey + "\x00" + strconv.FormatUint(fp, 16)
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		return c.placeOnce(context.WithoutCancel(ctx), req, fp)
	})
	if err != nil {
		return Confirmation{}, false, err
	}
	res := v.(*flightResult)
	if res.fingerprint != fp {
		return Confirmation{}, false, invalidf("idempotency key %q was used with a different request", req.IdempotencyKey)
	}
	// Callers sharing one flight: exactly one of them created the order.
	replayed := res.replayed || !res.claimed.CompareAndSwap(false, true)
	return res.conf, replayed, nil
}

// placeOnce looks the key up in the order store first, which holds every
// journaled order, then in the shared idempotency store.
func (c *Coordinator) placeOnce(ctx context.Context, req PlaceOrderRequest, fp uint64) (*flightResult, error) {
	if res, ok := c.recorded(req.IdempotencyKey); ok {
		return res, nil
	}
	if c.Idem != nil {
		rec, ok, err := c.Idem.Get(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, &Error{Kind: KindStorageUnavailable, Message: "idempotency store unavailable", Err: err}
		}
		if ok {
			return &flightResult{
				conf:        Confirmation{OrderID: rec.OrderID, TotalAmount: rec.TotalAmount, Status: Status(rec.Status)},
				fingerprint: rec.Fingerprint,
				replayed:    true,
			}, nil
		}
	}

	conf, err := c.place(ctx, req, fp)
	if errors.Is(err, ErrKeyTaken) {
		if res, ok := c.recorded(req.IdempotencyKey); ok {
			return res, nil
		}
	}
	if err != nil {
		return nil, err
	}
	if c.Idem == nil {
		return &flightResult{conf: conf, fingerprint: fp}, nil
	}
	stored, err := c.Idem.Put(ctx, req.IdempotencyKey, idem.Record{
		OrderID:     conf.OrderID,
		TotalAmount: conf.TotalAmount,
		Status:      string(conf.Status),
		Fingerprint: fp,
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Str("order_id", conf.OrderID).Msg("idempotency key not shared, order store still holds it")
	case !stored:
		log.Warn().Str("order_id", conf.OrderID).Str("idempotency_key", req.IdempotencyKey).
			Msg("idempotency key claimed concurrently by another replica")
	}
	return &flightResult{conf: conf, fingerprint: fp}, nil
}

func (c *Coordinator) recorded(key string) (*flightResult, bool) {
	o, ok := c.Store.ByIdempotencyKey(key)
	if !ok {
		return nil, false
	}
	return &flightResult{conf: o.Confirmation(), fingerprint: o.Fingerprint, replayed: true}, true
}

func (c *Coordinator) place(ctx context.Context, req PlaceOrderRequest, fp uint64) (Confirmation, error) {
	if len(req.Parts) > 0 {
		if res := c.validator().Check(req.Parts); !res.Compatible {
			log.Info().Str("user_id", req.UserID).Strs("reasons", res.Reasons).Msg("order rejected: incompatible parts")
			return Confirmation{}, &Error{Kind: KindIncompatibleParts, Message: res.Message, Reasons: res.Reasons}
		}
	}

	var reserved []Demand
	committed := false
	defer func() {
		if !committed {
			c.rollback(req.UserID, reserved)
		}
	}()

	for _, d := range Demands(req.Items) {
		if err := c.Ledger.Reserve(ctx, d.ProductID, d.Quantity); err != nil {
			e := reserveError(d.ProductID, err)
			log.Info().Str("kind", string(e.Kind)).Str("user_id", req.UserID).Str("product_id", d.ProductID).
				Err(err).Msg("reservation failed")
			return Confirmation{}, e
		}
		reserved = append(reserved, d)
	}

	o := Order{
		ID:              c.newID(),
		UserID:          req.UserID,
		Items:           append([]LineItem(nil), req.Items...),
		ShippingAddress: req.ShippingAddress,
		TotalAmount:     Total(req.Items),
		Status:          StatusProcessing,
		CreatedAt:       c.now().UTC(),
		IdempotencyKey:  req.IdempotencyKey,
		Fingerprint:     fp,
	}

	// The write outlives a cancelled request so it cannot leave stock
	// reserved for an order that was half recorded.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout())
	defer cancel()
	if err := c.Store.Append(sctx, o); err != nil {
		if errors.Is(err, ErrKeyTaken) {
			return Confirmation{}, &Error{Kind: KindInvalidRequest, Message: "idempotency key already used", Err: err}
		}
		log.Error().Err(err).Str("kind", string(KindStorageUnavailable)).Str("user_id", req.UserID).
			Str("order_id", o.ID).Msg("order not recorded")
		return Confirmation{}, &Error{Kind: KindStorageUnavailable, Message: "order could not be recorded", Err: err}
	}
	committed = true

	log.Info().Str("order_id", o.ID).Str("user_id", o.UserID).Str("total", o.TotalAmount.StringFixed(2)).Msg("order placed")
	c.publish(ctx, EventOrderPlaced, o)
	return o.Confirmation(), nil
}

// rollback releases reservations newest first. It ignores cancellation.
func (c *Coordinator) rollback(userID string, reserved []Demand) {
	for i := len(reserved) - 1; i >= 0; i-- {
		d := reserved[i]
		if err := c.Ledger.Release(d.ProductID, d.Quantity); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("product_id", d.ProductID).Int("qty", d.Quantity).
				Msg("rollback release failed")
			continue
		}
		log.Debug().Str("user_id", userID).Str("product_id", d.ProductID).Int("qty", d.Quantity).Msg("reservation rolled back")
	}
}

// Checkout prices the items from the catalog, derives the part descriptors
// and places the order.
func (c *Coordinator) Checkout(ctx context.Context, req CheckoutRequest) (Confirmation, bool, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Confirmation{}, false, invalidf("user_id is required")
	}
	if len(req.Items) == 0 {
		return Confirmation{}, false, invalidf("items must not be empty")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return Confirmation{}, false, invalidf("shipping_address is required")
	}
	for i, in := range req.Items {
		if strings.TrimSpace(in.ProductID) == "" {
			return Confirmation{}, false, invalidf("items[%d]: product_id is required", i)
		}
		if in.Quantity <= 0 {
			return Confirmation{}, false, invalidf("items[%d]: quantity must be positive", i)
		}
	}
	if c.Catalog == nil {
		return Confirmation{}, false, &Error{Kind: KindStorageUnavailable, Message: "catalog not configured"}
	}

	items := make([]LineItem, 0, len(req.Items))
	parts := make([]compat.PartDescriptor, 0, len(req.Items))
	for _, in := range req.Items {
		p, err := c.Catalog.Get(in.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return Confirmation{}, false, &Error{
				Kind:      KindNotFound,
				Message:   fmt.Sprintf("product %s not found", in.ProductID),
				ProductID: in.ProductID,
				Err:       err,
			}
		}
		if err != nil {
			return Confirmation{}, false, &Error{Kind: KindStorageUnavailable, Message: "catalog lookup failed", Err: err}
		}
		items = append(items, LineItem{ProductID: p.ID, Quantity: in.Quantity, UnitPrice: p.Price})
		parts = append(parts, p.Part())
	}

	return c.PlaceOrder(ctx, PlaceOrderRequest{
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		Parts:           parts,
		IdempotencyKey:  req.IdempotencyKey,
	})
}

// CancelOrder cancels a Processing order and returns its stock.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (Order, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout())
	defer cancel()

	o, err := c.Store.Cancel(sctx, orderID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Order{}, &Error{Kind: KindNotFound, Message: fmt.Sprintf("order %s not found", orderID), Err: err}
	case errors.Is(err, ErrNotCancellable):
		return Order{}, &Error{Kind: KindInvalidRequest, Message: ErrNotCancellable.Error(), Err: err}
	case err != nil:
		return Order{}, &Error{Kind: KindStorageUnavailable, Message: "order could not be cancelled", Err: err}
	}

	for _, d := range Demands(o.Items) {
		if err := c.Ledger.Release(d.ProductID, d.Quantity); err != nil {
			log.Error().Err(err).Str("order_id", o.ID).Str("product_id", d.ProductID).Msg("cancel release failed")
		}
	}
	log.Info().Str("order_id", o.ID).Str("user_id", o.UserID).Msg("order cancelled")
	c.publish(ctx, EventOrderCancelled, o)
	return o, nil
}

// History returns the user's orders in creation order.
func (c *Coordinator) History(userID string) []Order {
	return c.Store.ByUser(userID)
}

func (c *Coordinator) Order(orderID string) (Order, error) {
	o, err := c.Store.ByID(orderID)
	if err != nil {
		return Order{}, &Error{Kind: KindNotFound, Message: fmt.Sprintf("order %s not found", orderID), Err: err}
	}
	return o, nil
}

func (c *Coordinator) publish(ctx context.Context, eventType string, o Order) {
	if c.Publisher == nil {
		return
	}
	ev, err := NewEnvelope(eventType, c.Service, o, c.now())
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("build event")
		return
	}
	if err := c.Publisher.PublishEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Str("event_type", eventType).Msg("publish event")
	}
}

func reserveError(productID string, err error) *Error {
	var shortage *inventory.Shortage
	switch {
	case errors.As(err, &shortage):
		return &Error{
			Kind:      KindInsufficientStock,
			Message:   fmt.Sprintf("insufficient stock for %s: requested %d, available %d", productID, shortage.Required, shortage.Available),
			ProductID: productID,
			Err:       err,
		}
	case errors.Is(err, inventory.ErrInsufficientStock):
		return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf("insufficient stock for %s", productID), ProductID: productID, Err: err}
	case errors.Is(err, inventory.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf("product %s not found", productID), ProductID: productID, Err: err}
	case errors.Is(err, inventory.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("stock for %s is busy, retry later", productID), ProductID: productID, Err: err}
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("invalid quantity for %s", productID), ProductID: productID, Err: err}
	default:
		return &Error{Kind: KindStorageUnavailable, Message: "inventory unavailable", ProductID: productID, Err: err}
	}
}

func validate(req PlaceOrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return invalidf("user_id is required")
	}
	if len(req.Items) == 0 {
		return invalidf("items must not be empty")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return invalidf("shipping_address is required")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return invalidf("items[%d]: product_id is required", i)
		}
		if it.Quantity <= 0 {
			return invalidf("items[%d]: quantity must be positive", i)
		}
		if it.UnitPrice.IsNegative() {
			return invalidf("items[%d]: unit_price must not be negative", i)
		}
	}
	return nil
}

// Fingerprint hashes everything that shapes the order, so a reused
// idempotency key with a different request can be told apart.
func Fingerprint(req PlaceOrderRequest) uint64 {
	h := xxhash.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = h.WriteString(p)
			_, _ = h.Write([]byte{0})
		}
	}
	write(req.UserID, strings.TrimSpace(req.ShippingAddress))

	items := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.ProductID+":"+strconv.Itoa(it.Quantity)+":"+it.UnitPrice.String())
	}
	sort.Strings(items)
	write(items...)

	parts := make([]string, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, strings.ToLower(p.Name)+"/"+strings.ToLower(p.Socket)+"/"+strings.ToLower(p.MemoryType))
	}
	sort.Strings(parts)
	write(parts...)
	return h.Sum64()
}

func (c *Coordinator) validator() *compat.Validator {
	if c.Validator == nil {
		return compat.NewValidator()
	}
	return c.Validator
}

func (c *Coordinator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Coordinator) newID() string {
	if c.NewID == nil {
		return uuid.NewString()
	}
	return c.NewID()
}

func (c *Coordinator) storeTimeout() time.Duration {
	if c.StoreTimeout <= 0 {
		return DefaultStoreTimeout
	}
	return c.StoreTimeout
}

package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"storefront/commerce"
	models "storefront/model"
	"storefront/session"
)

var (
	ErrNotSignedIn       = errors.New("sign in required")
	ErrEmptyCart         = errors.New("cart empty")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotCancellable    = errors.New("order can no longer be cancelled")
	ErrOrderNotDelivered = errors.New("feedback is only accepted for delivered orders")
)

// DefaultPaymentMethod is used when checkout does not name one.
const DefaultPaymentMethod = "cod"

type Service struct {
	sessions *session.Registry
	api      commerce.API
	log      logrus.FieldLogger
}

var _ ServiceInterface = (*Service)(nil)

func NewService(sessions *session.Registry, api commerce.API, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{sessions: sessions, api: api, log: log}
}

// CheckoutRequest carries the customer and shipping fields of an order.
// The order lines and total always come from the session's cart.
type CheckoutRequest struct {
	CustomerName  string                 `json:"customer_name"`
	Email         string                 `json:"email,omitempty"`
	Phone         string                 `json:"phone"`
	Address       models.ShippingAddress `json:"shipping_address"`
	DeliveryDate  string                 `json:"delivery_date,omitempty"`
	Note          string                 `json:"note,omitempty"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
}

func (r CheckoutRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CustomerName) == "":
		return errors.Wrap(ErrInvalidInput, "customer_name is required")
	case strings.TrimSpace(r.Phone) == "":
		return errors.Wrap(ErrInvalidInput, "phone is required")
	case strings.TrimSpace(r.Address.Street) == "" || strings.TrimSpace(r.Address.City) == "":
		return errors.Wrap(ErrInvalidInput, "shipping street and city are required")
	}
	return nil
}

func (r CheckoutRequest) orderRequest(cart models.Snapshot) models.OrderRequest {
	pm := r.PaymentMethod
	if pm == "" {
		pm = DefaultPaymentMethod
	}
	return models.OrderRequest{
		Items:         models.OrderItemsFromCart(cart),
		CustomerName:  strings.TrimSpace(r.CustomerName),
		Email:         strings.TrimSpace(r.Email),
		Phone:         strings.TrimSpace(r.Phone),
		Address:       r.Address,
		DeliveryDate:  r.DeliveryDate,
		Note:          r.Note,
		PaymentMethod: pm,
		Total:         cart.Total,
	}
}

// --- cart ---

func (s *Service) AddToCart(sessionID string, in models.ItemInput, qty int) models.Snapshot {
	c := s.sessions.Open(sessionID).Cart
	c.AddItem(in, qty)
	return c.Snapshot()
}

// AddProductToCart adds a catalog product, taking price, name and image from
// the commerce API instead of the caller.
func (s *Service) AddProductToCart(ctx context.Context, sessionID, productID, variant string, qty int) (models.Snapshot, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if variant != "" && variant != models.NoVariant && !p.HasSize(variant) {
		return models.Snapshot{}, errors.Wrapf(ErrInvalidInput, "product %s has no size %q", productID, variant)
	}
	return s.AddToCart(sessionID, p.ItemInput(variant), qty), nil
}

func (s *Service) RemoveFromCart(sessionID, productID string) models.Snapshot {
	c := s.sessions.Open(sessionID).Cart
	c.RemoveItem(productID)
	return c.Snapshot()
}

func (s *Service) UpdateCartQuantity(sessionID, productID string, qty int) models.Snapshot {
	c := s.sessions.Open(sessionID).Cart
	c.UpdateQuantity(productID, qty)
	return c.Snapshot()
}

func (s *Service) GetCart(sessionID string) models.Snapshot {
	return s.sessions.Open(sessionID).Cart.Snapshot()
}

func (s *Service) ClearCart(sessionID string) models.Snapshot {
	c := s.sessions.Open(sessionID).Cart
	c.Clear()
	return c.Snapshot()
}

// Checkout places an order for the current cart. The ordered lines are only
// taken out of the cart once the commerce API has accepted the order.
func (s *Service) Checkout(ctx context.Context, sessionID string, req CheckoutRequest) (models.Order, error) {
	sess := s.sessions.Open(sessionID)
	token := sess.Auth.Token()
	if token == "" {
		return models.Order{}, ErrNotSignedIn
	}
	cart := sess.Cart.Snapshot()
	if cart.Empty() {
		return models.Order{}, ErrEmptyCart
	}
	if err := req.validate(); err != nil {
		return models.Order{}, err
	}

	order, err := s.api.CreateOrder(ctx, token, req.orderRequest(cart))
	if err != nil {
		return models.Order{}, s.apiErr(sess, err, "place order")
	}
	// only the ordered lines leave the cart; items added meanwhile stay
	sess.Cart.RemoveLines(cart.Items)
	sess.Orders.Add(order)
	s.log.WithFields(logrus.Fields{
		"session": sessionID,
		"order":   order.ID,
		"lines":   len(cart.Items),
		"total":   cart.Total,
	}).Info("order placed")
	return order, nil
}

// apiErr broadcasts a logout when the backend rejected the credential.
func (s *Service) apiErr(sess *session.Session, err error, action string) error {
	if errors.Is(err, commerce.ErrUnauthorized) {
		sess.Logout.Publish("credential rejected while trying to " + action)
		return errors.Wrap(ErrNotSignedIn, "session expired")
	}
	return errors.Wrap(err, action)
}

// --- auth ---

func (s *Service) Register(ctx context.Context, sessionID string, req models.RegisterRequest) (models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" {
		return models.User{}, errors.Wrap(ErrInvalidInput, "name and email are required")
	}
	if len(req.Password) < 6 {
		return models.User{}, errors.Wrap(ErrInvalidInput, "password must be at least 6 characters")
	}
	res, err := s.api.Register(ctx, req)
	if err != nil {
		return models.User{}, errors.Wrap(err, "register")
	}
	s.sessions.Open(sessionID).Auth.SignIn(res)
	return res.User, nil
}

func (s *Service) Login(ctx context.Context, sessionID, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.User{}, errors.Wrap(ErrInvalidInput, "email and password are required")
	}
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, commerce.ErrUnauthorized) {
			return models.User{}, errors.Wrap(ErrNotSignedIn, "invalid email or password")
		}
		return models.User{}, errors.Wrap(err, "login")
	}
	s.sessions.Open(sessionID).Auth.SignIn(res)
	s.log.WithField("session", sessionID).Info("signed in")
	return res.User, nil
}

// Logout signs the session out through the same path as an expired credential.
func (s *Service) Logout(sessionID string) {
	s.sessions.Open(sessionID).Logout.Publish("user logout")
}

// CurrentUser refreshes the signed-in user from the commerce API.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (models.User, error) {
	sess := s.sessions.Open(sessionID)
	token := sess.Auth.Token()
	if token == "" {
		return models.User{}, ErrNotSignedIn
	}
	u, err := s.api.Me(ctx, token)
	if err != nil {
		return models.User{}, s.apiErr(sess, err, "load profile")
	}
	sess.Auth.SignIn(models.AuthResult{Token: token, User: u})
	return u, nil
}

// --- catalog ---

func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	ps, err := s.api.ListProducts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return ps, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (models.Product, error) {
	if id == "" {
		return models.Product{}, errors.Wrap(ErrInvalidInput, "product id required")
	}
	p, err := s.api.GetProduct(ctx, id)
	if err != nil {
		return models.Product{}, errors.Wrapf(err, "get product %s", id)
	}
	return p, nil
}

// --- orders ---

func (s *Service) signedIn(sessionID string) (*session.Session, string, error) {
	sess := s.sessions.Open(sessionID)
	token := sess.Auth.Token()
	if token == "" {
		return sess, "", ErrNotSignedIn
	}
	return sess, token, nil
}

func (s *Service) ListOrders(ctx context.Context, sessionID string) ([]models.Order, error) {
	sess, token, err := s.signedIn(sessionID)
	if err != nil {
		return nil, err
	}
	orders, err := s.api.ListOrders(ctx, token)
	if err != nil {
		return nil, s.apiErr(sess, err, "list orders")
	}
	sess.Orders.Replace(orders)
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, sessionID, orderID string) (models.Order, error) {
	sess, token, err := s.signedIn(sessionID)
	if err != nil {
		return models.Order{}, err
	}
	o, err := s.api.GetOrder(ctx, token, orderID)
	if err != nil {
		return models.Order{}, s.apiErr(sess, err, "get order")
	}
	sess.Orders.Update(o)
	return o, nil
}

// CancelOrder cancels a pending or processing order.
func (s *Service) CancelOrder(ctx context.Context, sessionID, orderID string) (models.Order, error) {
	o, err := s.GetOrder(ctx, sessionID, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if !o.Cancellable() {
		return models.Order{}, errors.Wrapf(ErrNotCancellable, "order %s is %s", orderID, o.Status)
	}
	sess, token, err := s.signedIn(sessionID)
	if err != nil {
		return models.Order{}, err
	}
	cancelled, err := s.api.CancelOrder(ctx, token, orderID)
	if err != nil {
		return models.Order{}, s.apiErr(sess, err, "cancel order")
	}
	sess.Orders.Update(cancelled)
	return cancelled, nil
}

// --- feedback ---

func (s *Service) SubmitFeedback(ctx context.Context, sessionID string, fb models.Feedback) (models.Feedback, error) {
	if fb.OrderID == "" {
		return models.Feedback{}, errors.Wrap(ErrInvalidInput, "order id required")
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		return models.Feedback{}, errors.Wrap(ErrInvalidInput, "rating must be between 1 and 5")
	}
	o, err := s.GetOrder(ctx, sessionID, fb.OrderID)
	if err != nil {
		return models.Feedback{}, err
	}
	if o.Status != models.OrderDelivered {
		return models.Feedback{}, errors.Wrapf(ErrOrderNotDelivered, "order %s is %s", o.ID, o.Status)
	}

	sess, token, err := s.signedIn(sessionID)
	if err != nil {
		return models.Feedback{}, err
	}
	fb.Comment = strings.TrimSpace(fb.Comment)
	out, err := s.api.SubmitFeedback(ctx, token, fb)
	if err != nil {
		return models.Feedback{}, s.apiErr(sess, err, "submit feedback")
	}
	return out, nil
}

func (s *Service) ListFeedback(ctx context.Context, sessionID, orderID string) ([]models.Feedback, error) {
	sess, token, err := s.signedIn(sessionID)
	if err != nil {
		return nil, err
	}
	fbs, err := s.api.ListFeedback(ctx, token, orderID)
	if err != nil {
		return nil, s.apiErr(sess, err, "list feedback")
	}
	return fbs, nil
}

// EndSession releases the in-memory state of a session.
func (s *Service) EndSession(sessionID string) {
	s.sessions.End(sessionID)
}

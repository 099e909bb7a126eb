package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"storefront/commerce"
	models "storefront/model"
	"storefront/session"
	"storefront/store"
)

// ---- fakeAPI implementing commerce.API for tests ----
type fakeAPI struct {
	ListProductsFn   func() ([]models.Product, error)
	GetProductFn     func(id string) (models.Product, error)
	RegisterFn       func(req models.RegisterRequest) (models.AuthResult, error)
	LoginFn          func(email, password string) (models.AuthResult, error)
	MeFn             func(token string) (models.User, error)
	CreateOrderFn    func(token string, req models.OrderRequest) (models.Order, error)
	ListOrdersFn     func(token string) ([]models.Order, error)
	GetOrderFn       func(token, id string) (models.Order, error)
	CancelOrderFn    func(token, id string) (models.Order, error)
	SubmitFeedbackFn func(token string, fb models.Feedback) (models.Feedback, error)
	ListFeedbackFn   func(token, orderID string) ([]models.Feedback, error)
}

func (f *fakeAPI) ListProducts(context.Context) ([]models.Product, error) { return f.ListProductsFn() }
func (f *fakeAPI) GetProduct(_ context.Context, id string) (models.Product, error) {
	return f.GetProductFn(id)
}
func (f *fakeAPI) Register(_ context.Context, req models.RegisterRequest) (models.AuthResult, error) {
	return f.RegisterFn(req)
}
func (f *fakeAPI) Login(_ context.Context, email, password string) (models.AuthResult, error) {
	return f.LoginFn(email, password)
}
func (f *fakeAPI) Me(_ context.Context, token string) (models.User, error) { return f.MeFn(token) }
func (f *fakeAPI) CreateOrder(_ context.Context, token string, req models.OrderRequest) (models.Order, error) {
	return f.CreateOrderFn(token, req)
}
func (f *fakeAPI) ListOrders(_ context.Context, token string) ([]models.Order, error) {
	return f.ListOrdersFn(token)
}
func (f *fakeAPI) GetOrder(_ context.Context, token, id string) (models.Order, error) {
	return f.GetOrderFn(token, id)
}
func (f *fakeAPI) CancelOrder(_ context.Context, token, id string) (models.Order, error) {
	return f.CancelOrderFn(token, id)
}
func (f *fakeAPI) SubmitFeedback(_ context.Context, token string, fb models.Feedback) (models.Feedback, error) {
	return f.SubmitFeedbackFn(token, fb)
}
func (f *fakeAPI) ListFeedback(_ context.Context, token, orderID string) ([]models.Feedback, error) {
	return f.ListFeedbackFn(token, orderID)
}

func newTestService(api commerce.API) (*Service, *session.Registry) {
	l := logrus.New()
	l.Out = io.Discard
	reg := session.NewRegistry(store.NewMemoryStore(), l)
	return NewService(reg, api, l), reg
}

func signIn(reg *session.Registry, sid string) {
	reg.Open(sid).Auth.SignIn(models.AuthResult{Token: "tok", User: models.User{ID: "u1"}})
}

var validCheckout = CheckoutRequest{
	CustomerName: "Lan",
	Phone:        "0900000000",
	Address:      models.ShippingAddress{Street: "1 Le Loi", City: "HCMC"},
}

// ---- Tests ----

func TestCartOperations(t *testing.T) {
	svc, _ := newTestService(&fakeAPI{})

	svc.AddToCart("s1", models.ItemInput{BaseID: "A", VariantKey: "M", UnitPrice: 10}, 1)
	snap := svc.AddToCart("s1", models.ItemInput{BaseID: "A", VariantKey: "M", UnitPrice: 10}, 2)
	if len(snap.Items) != 1 || snap.Total != 30 {
		t.Fatalf("expected one line totalling 30, got %+v", snap)
	}

	snap = svc.UpdateCartQuantity("s1", "A", 1)
	if snap.Count != 1 || snap.Total != 10 {
		t.Fatalf("expected quantity set to 1, got %+v", snap)
	}

	snap = svc.RemoveFromCart("s1", "A")
	if !snap.Empty() {
		t.Fatalf("expected empty cart, got %+v", snap)
	}

	// sessions do not share carts
	svc.AddToCart("s1", models.ItemInput{BaseID: "B"}, 1)
	if !svc.GetCart("s2").Empty() {
		t.Fatalf("expected s2 cart to be empty")
	}
	if svc.ClearCart("s1").Count != 0 {
		t.Fatalf("expected cleared cart")
	}
}

func TestCheckoutRequiresSignInAndItems(t *testing.T) {
	svc, reg := newTestService(&fakeAPI{})

	if _, err := svc.Checkout(context.Background(), "s1", validCheckout); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}

	signIn(reg, "s1")
	if _, err := svc.Checkout(context.Background(), "s1", validCheckout); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	svc.AddToCart("s1", models.ItemInput{BaseID: "A"}, 1)
	bad := validCheckout
	bad.Phone = " "
	if _, err := svc.Checkout(context.Background(), "s1", bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCheckoutSuccessClearsCart(t *testing.T) {
	var sent models.OrderRequest
	api := &fakeAPI{
		CreateOrderFn: func(token string, req models.OrderRequest) (models.Order, error) {
			if token != "tok" {
				t.Fatalf("unexpected token %q", token)
			}
			sent = req
			return models.Order{ID: "o1", Status: models.OrderPending, Items: req.Items, Total: req.Total}, nil
		},
	}
	svc, reg := newTestService(api)
	signIn(reg, "s1")
	svc.AddToCart("s1", models.ItemInput{BaseID: "A", VariantKey: "L", UnitPrice: 10, Name: "Rose"}, 3)
	svc.AddToCart("s1", models.ItemInput{BaseID: "B", UnitPrice: 5, Name: "Card"}, 1)

	o, err := svc.Checkout(context.Background(), "s1", validCheckout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.ID != "o1" {
		t.Fatalf("unexpected order: %+v", o)
	}
	if sent.Total != 35 || len(sent.Items) != 2 || sent.PaymentMethod != DefaultPaymentMethod {
		t.Fatalf("unexpected order payload: %+v", sent)
	}
	if sent.Items[0].Name != "Rose (L)" || sent.Items[1].Name != "Card" {
		t.Fatalf("unexpected item names: %+v", sent.Items)
	}
	if !svc.GetCart("s1").Empty() {
		t.Fatalf("expected cart to be cleared after checkout")
	}
	if got := reg.Open("s1").Orders.All(); len(got) != 1 || got[0].ID != "o1" {
		t.Fatalf("expected order to be recorded, got %+v", got)
	}
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	api := &fakeAPI{
		CreateOrderFn: func(string, models.OrderRequest) (models.Order, error) {
			return models.Order{}, &commerce.APIError{Status: 500, Message: "db down"}
		},
	}
	svc, reg := newTestService(api)
	signIn(reg, "s1")
	svc.AddToCart("s1", models.ItemInput{BaseID: "A", UnitPrice: 1}, 2)

	_, err := svc.Checkout(context.Background(), "s1", validCheckout)
	var apiErr *commerce.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if svc.GetCart("s1").Count != 2 {
		t.Fatalf("expected cart to survive a failed checkout")
	}
}

func TestCheckoutKeepsItemsAddedWhileOrdering(t *testing.T) {
	var svc *Service
	api := &fakeAPI{
		CreateOrderFn: func(_ string, req models.OrderRequest) (models.Order, error) {
			// a concurrent request for the same session lands mid-checkout
			svc.AddToCart("s1", models.ItemInput{BaseID: "late", UnitPrice: 2}, 1)
			return models.Order{ID: "o1", Status: models.OrderPending, Items: req.Items, Total: req.Total}, nil
		},
	}
	svc, reg := newTestService(api)
	signIn(reg, "s1")
	svc.AddToCart("s1", models.ItemInput{BaseID: "A", UnitPrice: 10}, 1)

	o, err := svc.Checkout(context.Background(), "s1", validCheckout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.Items) != 1 || o.Items[0].ProductID != "A" {
		t.Fatalf("unexpected order lines: %+v", o.Items)
	}
	cart := svc.GetCart("s1")
	if len(cart.Items) != 1 || cart.Items[0].BaseID != "late" || cart.Total != 2 {
		t.Fatalf("expected the late item to stay in the cart, got %+v", cart)
	}
}

func TestAddProductToCartUsesCatalogPrice(t *testing.T) {
	api := &fakeAPI{
		GetProductFn: func(id string) (models.Product, error) {
			if id != "rose" {
				return models.Product{}, commerce.ErrNotFound
			}
			return models.Product{
				ID:     "rose",
				Name:   "Rose",
				Price:  300,
				Images: []string{"rose.jpg", "rose-2.jpg"},
				Sizes:  []models.ProductSize{{Key: "L", Price: 450}},
			}, nil
		},
	}
	svc, _ := newTestService(api)

	cart, err := svc.AddProductToCart(context.Background(), "s1", "rose", "L", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Total != 900 || cart.Items[0].Name != "Rose" || cart.Items[0].Image != "rose.jpg" {
		t.Fatalf("unexpected cart: %+v", cart)
	}

	cart, err = svc.AddProductToCart(context.Background(), "s1", "rose", "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 2 || cart.Items[1].UnitPrice != 300 || cart.Items[1].VariantKey != models.NoVariant {
		t.Fatalf("expected base-priced default line, got %+v", cart.Items)
	}

	if _, err := svc.AddProductToCart(context.Background(), "s1", "rose", "XXL", 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown size, got %v", err)
	}
	if _, err := svc.AddProductToCart(context.Background(), "s1", "tulip", "", 1); !errors.Is(err, commerce.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if svc.GetCart("s1").Count != 3 {
		t.Fatalf("rejected adds must not change the cart")
	}
}

func TestUnauthorizedBroadcastsLogout(t *testing.T) {
	api := &fakeAPI{
		ListOrdersFn: func(string) ([]models.Order, error) {
			return nil, commerce.ErrUnauthorized
		},
	}
	svc, reg := newTestService(api)
	signIn(reg, "s1")
	reg.Open("s1").Orders.Add(models.Order{ID: "cached"})

	_, err := svc.ListOrders(context.Background(), "s1")
	if !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
	sess := reg.Open("s1")
	if sess.Auth.Token() != "" {
		t.Fatalf("expected credential to be cleared")
	}
	if len(sess.Orders.All()) != 0 {
		t.Fatalf("expected cached orders to be cleared")
	}
}

func TestLoginAndLogout(t *testing.T) {
	api := &fakeAPI{
		LoginFn: func(email, password string) (models.AuthResult, error) {
			if password != "secret" {
				return models.AuthResult{}, commerce.ErrUnauthorized
			}
			return models.AuthResult{Token: "tok", User: models.User{ID: "u1", Email: email}}, nil
		},
	}
	svc, reg := newTestService(api)

	if _, err := svc.Login(context.Background(), "s1", "", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "s1", "lan@example.com", "wrong"); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}

	u, err := svc.Login(context.Background(), "s1", " lan@example.com ", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "lan@example.com" || reg.Open("s1").Auth.Token() != "tok" {
		t.Fatalf("expected signed-in session, got %+v", u)
	}

	svc.Logout("s1")
	if reg.Open("s1").Auth.Token() != "" {
		t.Fatalf("expected logout to clear credential")
	}
}

func TestRegisterValidationAndSignIn(t *testing.T) {
	called := false
	api := &fakeAPI{
		RegisterFn: func(req models.RegisterRequest) (models.AuthResult, error) {
			called = true
			return models.AuthResult{Token: "new", User: models.User{ID: "u2", Name: req.Name}}, nil
		},
	}
	svc, reg := newTestService(api)

	if _, err := svc.Register(context.Background(), "s1", models.RegisterRequest{Name: "Lan", Email: "a@b.c", Password: "123"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected short password to be rejected, got %v", err)
	}
	if called {
		t.Fatalf("expected no API call for invalid input")
	}

	u, err := svc.Register(context.Background(), "s1", models.RegisterRequest{Name: "Lan", Email: "a@b.c", Password: "123456"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "u2" || reg.Open("s1").Auth.Token() != "new" {
		t.Fatalf("expected registered user to be signed in")
	}
}

func TestCancelOrder(t *testing.T) {
	status := models.OrderPending
	cancelCalls := 0
	api := &fakeAPI{
		GetOrderFn: func(_, id string) (models.Order, error) {
			return models.Order{ID: id, Status: status}, nil
		},
		CancelOrderFn: func(_, id string) (models.Order, error) {
			cancelCalls++
			return models.Order{ID: id, Status: models.OrderCancelled}, nil
		},
	}
	svc, reg := newTestService(api)
	signIn(reg, "s1")

	o, err := svc.CancelOrder(context.Background(), "s1", "o1")
	if err != nil || o.Status != models.OrderCancelled {
		t.Fatalf("expected cancelled order, got %+v %v", o, err)
	}

	status = models.OrderShipping
	if _, err := svc.CancelOrder(context.Background(), "s1", "o2"); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if cancelCalls != 1 {
		t.Fatalf("expected exactly one cancel call, got %d", cancelCalls)
	}
}

func TestSubmitFeedbackOnlyForDeliveredOrders(t *testing.T) {
	status := models.OrderShipping
	submitted := false
	api := &fakeAPI{
		GetOrderFn: func(_, id string) (models.Order, error) {
			return models.Order{ID: id, Status: status}, nil
		},
		SubmitFeedbackFn: func(_ string, fb models.Feedback) (models.Feedback, error) {
			submitted = true
			fb.ID = "f1"
			return fb, nil
		},
	}
	svc, reg := newTestService(api)
	signIn(reg, "s1")

	if _, err := svc.SubmitFeedback(context.Background(), "s1", models.Feedback{OrderID: "o1", Rating: 6}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected rating validation error, got %v", err)
	}
	if _, err := svc.SubmitFeedback(context.Background(), "s1", models.Feedback{OrderID: "o1", Rating: 5}); !errors.Is(err, ErrOrderNotDelivered) {
		t.Fatalf("expected ErrOrderNotDelivered, got %v", err)
	}
	if submitted {
		t.Fatalf("feedback must not be sent for undelivered orders")
	}

	status = models.OrderDelivered
	fb, err := svc.SubmitFeedback(context.Background(), "s1", models.Feedback{OrderID: "o1", Rating: 5, Comment: " lovely "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.ID != "f1" || fb.Comment != "lovely" {
		t.Fatalf("unexpected feedback: %+v", fb)
	}
}

func TestCurrentUserRefreshesProfile(t *testing.T) {
	api := &fakeAPI{
		MeFn: func(token string) (models.User, error) {
			return models.User{ID: "u1", Name: "Lan Nguyen"}, nil
		},
	}
	svc, reg := newTestService(api)
	if _, err := svc.CurrentUser(context.Background(), "s1"); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
	signIn(reg, "s1")
	u, err := svc.CurrentUser(context.Background(), "s1")
	if err != nil || u.Name != "Lan Nguyen" {
		t.Fatalf("unexpected user %+v %v", u, err)
	}
	if cached, _ := reg.Open("s1").Auth.User(); cached.Name != "Lan Nguyen" {
		t.Fatalf("expected refreshed user to be stored, got %+v", cached)
	}
}

func TestListProductsAPIError(t *testing.T) {
	svc, _ := newTestService(&fakeAPI{
		ListProductsFn: func() ([]models.Product, error) { return nil, errors.New("api down") },
	})
	if _, err := svc.ListProducts(context.Background()); err == nil {
		t.Fatalf("expected API error to propagate")
	}
	if _, err := svc.GetProduct(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty id, got %v", err)
	}
}

func TestEndSession(t *testing.T) {
	svc, reg := newTestService(&fakeAPI{})
	svc.AddToCart("s1", models.ItemInput{BaseID: "A"}, 1)
	svc.EndSession("s1")
	if reg.Len() != 0 {
		t.Fatalf("expected no live sessions")
	}
	if svc.GetCart("s1").Count != 1 {
		t.Fatalf("expected cart to be restored from the store")
	}
}

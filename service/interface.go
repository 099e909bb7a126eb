package service

import (
	"context"

	models "storefront/model"
)

type ServiceInterface interface {
	AddToCart(sessionID string, in models.ItemInput, qty int) models.Snapshot
	AddProductToCart(ctx context.Context, sessionID, productID, variant string, qty int) (models.Snapshot, error)
	RemoveFromCart(sessionID, productID string) models.Snapshot
	UpdateCartQuantity(sessionID, productID string, qty int) models.Snapshot
	GetCart(sessionID string) models.Snapshot
	ClearCart(sessionID string) models.Snapshot
	Checkout(ctx context.Context, sessionID string, req CheckoutRequest) (models.Order, error)

	Register(ctx context.Context, sessionID string, req models.RegisterRequest) (models.User, error)
	Login(ctx context.Context, sessionID, email, password string) (models.User, error)
	Logout(sessionID string)
	CurrentUser(ctx context.Context, sessionID string) (models.User, error)

	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)

	ListOrders(ctx context.Context, sessionID string) ([]models.Order, error)
	GetOrder(ctx context.Context, sessionID, orderID string) (models.Order, error)
	CancelOrder(ctx context.Context, sessionID, orderID string) (models.Order, error)

	SubmitFeedback(ctx context.Context, sessionID string, fb models.Feedback) (models.Feedback, error)
	ListFeedback(ctx context.Context, sessionID, orderID string) ([]models.Feedback, error)

	EndSession(sessionID string)
}

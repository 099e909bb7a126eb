package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"storefront/commerce"
	"storefront/metrics"
	models "storefront/model"
	"storefront/service"
)

// Handler is the HTTP layer that talks to service.ServiceInterface
type Handler struct {
	svc service.ServiceInterface
	log logrus.FieldLogger
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{svc: s, log: log}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.logHandler)

	// Products
	r.HandleFunc("/products/list", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)

	// Cart
	r.HandleFunc("/cart/list", h.ListCart).Methods(http.MethodGet)
	r.HandleFunc("/cart/add", h.AddToCart).Methods(http.MethodPost)
	r.HandleFunc("/cart/add-product", h.AddProductToCart).Methods(http.MethodPost)
	r.HandleFunc("/cart/remove", h.RemoveFromCart).Methods(http.MethodPost)
	r.HandleFunc("/cart/update", h.UpdateCartItem).Methods(http.MethodPost)
	r.HandleFunc("/cart/clear", h.ClearCart).Methods(http.MethodPost)

	// Checkout
	r.HandleFunc("/checkout/order", h.Checkout).Methods(http.MethodPost)

	// Auth
	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)

	// Orders and feedback
	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/feedback", h.ListFeedback).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/feedback", h.SubmitFeedback).Methods(http.MethodPost)

	r.HandleFunc("/session", h.EndSession).Methods(http.MethodDelete)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/_healthz", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "ok") })
}

// Router builds the complete HTTP handler including session handling.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return ensureSessionID(r)
}

// --- request / response shapes ---
type addCartReq struct {
	models.ItemInput
	Quantity int `json:"quantity,omitempty"` // defaults to 1
}

type addProductReq struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type feedbackReq struct {
	ProductID string `json:"product_id,omitempty"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// statusFor maps service and API errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *commerce.APIError
	switch {
	case errors.Is(err, service.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrOrderNotDelivered):
		return http.StatusConflict
	case errors.Is(err, commerce.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := requestLog(r).WithError(err).WithField("status", code)
	if code >= 500 {
		log.Error("request error")
	} else {
		log.Info("request rejected")
	}
	writeErr(w, code, err.Error())
}

// --- Products ---

// ListProducts handles GET /products/list
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Cart ---

// ListCart handles GET /cart/list
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetCart(sessionID(r)))
}

// AddToCart handles POST /cart/add
// body: { "base_id": "...", "variant_key": "M", "unit_price": 10, "name": "...", "image": "...", "quantity": 2 }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addCartReq
	if !decode(w, r, &req) {
		return
	}
	if req.BaseID == "" {
		writeErr(w, http.StatusBadRequest, "base_id is required")
		return
	}
	requestLog(r).WithFields(logrus.Fields{
		"product":  req.BaseID,
		"variant":  req.VariantKey,
		"quantity": req.Quantity,
	}).Debug("adding to cart")
	writeJSON(w, http.StatusOK, h.svc.AddToCart(sessionID(r), req.ItemInput, req.Quantity))
}

// AddProductToCart handles POST /cart/add-product
// body: { "product_id": "...", "variant_key": "L", "quantity": 2 }; price, name and image come from the catalog
func (h *Handler) AddProductToCart(w http.ResponseWriter, r *http.Request) {
	var req addProductReq
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeErr(w, http.StatusBadRequest, "product_id is required")
		return
	}
	snap, err := h.svc.AddProductToCart(r.Context(), sessionID(r), req.ProductID, req.VariantKey, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RemoveFromCart handles POST /cart/remove
// body: { "product_id": "..." }; removes every variant of the product
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeErr(w, http.StatusBadRequest, "product_id is required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.RemoveFromCart(sessionID(r), req.ProductID))
}

// UpdateCartItem handles POST /cart/update
// body: { "product_id": "...", "quantity": 3 }; quantity < 1 removes the product
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeErr(w, http.StatusBadRequest, "product_id is required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.UpdateCartQuantity(sessionID(r), req.ProductID, req.Quantity))
}

// ClearCart handles POST /cart/clear
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ClearCart(sessionID(r)))
}

// Checkout handles POST /checkout/order
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	ord, err := h.svc.Checkout(r.Context(), sessionID(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}

// --- Auth ---

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.svc.Register(r.Context(), sessionID(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decode(w, r, &req) {
		return
	}
	u, err := h.svc.Login(r.Context(), sessionID(r), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout(sessionID(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- Orders ---

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), sessionID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelOrder handles POST /orders/{id}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.CancelOrder(r.Context(), sessionID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SubmitFeedback handles POST /orders/{id}/feedback
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackReq
	if !decode(w, r, &req) {
		return
	}
	fb, err := h.svc.SubmitFeedback(r.Context(), sessionID(r), models.Feedback{
		OrderID:   mux.Vars(r)["id"],
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// ListFeedback handles GET /orders/{id}/feedback
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	fbs, err := h.svc.ListFeedback(r.Context(), sessionID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fbs)
}

// EndSession handles DELETE /session; the stored cart is kept for the next visit
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.svc.EndSession(sessionID(r))
	w.WriteHeader(http.StatusNoContent)
}

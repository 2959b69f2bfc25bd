package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/repository"
)

// OrderHandler serves the order API.
type OrderHandler struct {
	orders   domain.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates the order API handler.
func NewOrderHandler(orders domain.OrderService) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type addressRequest struct {
	FullName     string `json:"fullName" validate:"required"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode" validate:"required"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone        string `json:"phone"`
}

type orderItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid4"`
	VariantID string `json:"variantId" validate:"omitempty,uuid4"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	Guest *struct {
		Name  string `json:"name"`
		Email string `json:"email" validate:"required,email"`
		Phone string `json:"phone"`
	} `json:"guest"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress addressRequest     `json:"shippingAddress" validate:"required"`
	BillingAddress  addressRequest     `json:"billingAddress" validate:"required"`
	PaymentMethod   string             `json:"paymentMethod" validate:"required,oneof=card bank_transfer cash_on_delivery"`
	Notes           string             `json:"notes" validate:"max=2000"`
}

type updateStatusRequest struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"paymentStatus"`
}

type addressResponse struct {
	FullName     string `json:"fullName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

type orderItemResponse struct {
	ProductID      string `json:"productId"`
	VariantID      string `json:"variantId,omitempty"`
	ProductName    string `json:"productName"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int32  `json:"quantity"`
	TotalCents     int64  `json:"totalCents"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"paymentStatus"`
	PaymentMethod   string              `json:"paymentMethod"`
	TransactionID   *int64              `json:"transactionId,omitempty"`
	TotalCents      int64               `json:"totalCents"`
	Notes           string              `json:"notes,omitempty"`
	Items           []orderItemResponse `json:"items,omitempty"`
	ShippingAddress *addressResponse    `json:"shippingAddress,omitempty"`
	BillingAddress  *addressResponse    `json:"billingAddress,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Create handles POST /api/orders.
func (h *OrderHandler) Create(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return domain.Invalid("order.create", "Malformed request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.Invalid("order.create", validationMessage(err))
	}

	params := domain.CreateOrderParams{
		Items:           make([]domain.OrderItemInput, 0, len(req.Items)),
		ShippingAddress: addressInput(req.ShippingAddress),
		BillingAddress:  addressInput(req.BillingAddress),
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		params.Items = append(params.Items, domain.OrderItemInput{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	if user := domain.UserFromContext(c.Request().Context()); user != nil {
		params.UserID = uuidToString(user.ID)
	} else if req.Guest != nil {
		params.Guest = &domain.GuestContact{
			Name:  req.Guest.Name,
			Email: req.Guest.Email,
			Phone: req.Guest.Phone,
		}
	}

	detail, err := h.orders.CreateOrder(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, detailResponse(detail))
}

// Get handles GET /api/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	detail, err := h.orders.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detailResponse(detail))
}

// GetByNumber handles GET /api/orders/number/:number.
func (h *OrderHandler) GetByNumber(c echo.Context) error {
	detail, err := h.orders.GetOrderByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detailResponse(detail))
}

// List handles GET /api/orders.
func (h *OrderHandler) List(c echo.Context) error {
	params := domain.ListOrdersParams{Status: c.QueryParam("status")}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return domain.Invalid("order.list", "limit must be a non-negative integer")
		}
		params.Limit = int32(n)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return domain.Invalid("order.list", "offset must be a non-negative integer")
		}
		params.Offset = int32(n)
	}

	orders, err := h.orders.ListOrders(c.Request().Context(), params)
	if err != nil {
		return err
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderOnlyResponse(o))
	}
	return c.JSON(http.StatusOK, map[string]any{"orders": out})
}

// UpdateStatus handles PATCH /api/orders/:id/status.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return domain.Invalid("order.update_status", "Malformed request body")
	}

	params := domain.UpdateStatusParams{}
	if req.Status != nil {
		s := domain.OrderStatus(*req.Status)
		params.Status = &s
	}
	if req.PaymentStatus != nil {
		s := domain.PaymentStatus(*req.PaymentStatus)
		params.PaymentStatus = &s
	}

	order, err := h.orders.UpdateStatus(c.Request().Context(), c.Param("id"), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orderOnlyResponse(*order))
}

func addressInput(req addressRequest) domain.AddressInput {
	return domain.AddressInput{
		FullName:     req.FullName,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Phone:        req.Phone,
	}
}

func detailResponse(detail *domain.OrderDetail) orderResponse {
	resp := orderOnlyResponse(detail.Order)
	for _, item := range detail.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:      uuidToString(item.ProductID),
			VariantID:      uuidToString(item.VariantID),
			ProductName:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			TotalCents:     item.TotalCents,
		})
	}
	if detail.ShippingAddress.ID.Valid {
		resp.ShippingAddress = toAddressResponse(detail.ShippingAddress)
	}
	if detail.BillingAddress.ID.Valid {
		resp.BillingAddress = toAddressResponse(detail.BillingAddress)
	}
	return resp
}

func orderOnlyResponse(o repository.Order) orderResponse {
	resp := orderResponse{
		ID:            uuidToString(o.ID),
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		TotalCents:    o.TotalCents,
		Notes:         o.Notes.String,
		CreatedAt:     o.CreatedAt.Time,
		UpdatedAt:     o.UpdatedAt.Time,
	}
	if o.TransactionID.Valid {
		id := o.TransactionID.Int64
		resp.TransactionID = &id
	}
	return resp
}

func toAddressResponse(a repository.Address) *addressResponse {
	return &addressResponse{
		FullName:     a.FullName,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2.String,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Phone:        a.Phone.String,
	}
}

// validationMessage flattens the first validator error into a user-facing
// message. The full per-field breakdown is overkill for this API surface.
func validationMessage(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return "Invalid value for field " + first.Field()
	}
	return "Invalid request body"
}

func uuidToString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	v, err := id.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

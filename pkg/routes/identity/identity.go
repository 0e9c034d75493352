package identity

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/blessingk/neo4j/pkg/context"
	"github.com/blessingk/neo4j/pkg/models"
	"github.com/blessingk/neo4j/pkg/resolver"
	"github.com/blessingk/neo4j/pkg/utils"
)

// Handler serves the identity resolution API
type Handler struct {
	resolver *resolver.Resolver
	logger   ectologger.Logger
}

// NewHandler creates a new identity handler
func NewHandler(r *resolver.Resolver, logger ectologger.Logger) *Handler {
	return &Handler{
		resolver: r,
		logger:   logger,
	}
}

// Register registers the identity routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/brand", h.UpsertBrand)
	g.GET("/brand/:id", h.GetBrand)

	g.POST("/identify", h.Identify)
	g.POST("/link-login", h.LinkOnLogin)
	g.POST("/link-external-session", h.LinkExternalSession)
	g.POST("/link-internal-session", h.LinkInternalSession)
	g.POST("/link-internal-to-existing", h.LinkInternalToExisting)

	g.POST("/customer-session", h.CreateOrUpdateCustomerSession)
	g.GET("/customer-session", h.GetCustomerSession)
	g.POST("/update-customer-session", h.UpdateCustomerSession)
	g.POST("/internal-session", h.CreateInternalSession)

	g.GET("/customer-for-session", h.GetCustomerForSession)
	g.GET("/quick-identify-customer", h.QuickIdentifyInternal)
	g.GET("/quick-identify-internal", h.QuickIdentifyInternal)
	g.GET("/quick-identify-external", h.QuickIdentifyExternal)
	g.GET("/find-customer-by-session", h.FindCustomerBySession)
	g.GET("/find-customer", h.FindCustomer)

	g.GET("/customer-with-sessions", h.GetCustomerWithSessions)
	g.GET("/customer-latest-session", h.GetCustomerLatestSession)
	g.GET("/customer-loyalty-profile", h.GetCustomerLoyaltyProfile)
	g.GET("/all-customers-activity", h.ListCustomerActivity)
}

// brandOr falls back to the X-Brand-ID header when the request names no brand.
func brandOr(c echo.Context, brandID string) string {
	if brandID != "" {
		return brandID
	}
	return context.GetBrandID(c.Request().Context())
}

func notFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// UpsertBrand creates or updates a brand
// @Router /identity/brand [post]
func (h *Handler) UpsertBrand(c echo.Context) error {
	req, err := utils.BindRequest[resolver.UpsertBrandRequest](c)
	if err != nil {
		return err
	}

	brand, err := h.resolver.UpsertBrand(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, brand)
}

// GetBrand returns a brand by id
// @Router /identity/brand/{id} [get]
func (h *Handler) GetBrand(c echo.Context) error {
	id := c.Param("id")
	brand, err := h.resolver.GetBrand(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if brand == nil {
		return notFound("brand %q not found", id)
	}
	return c.JSON(http.StatusOK, brand)
}

// Identify records an anonymous provider session
// @Router /identity/identify [post]
func (h *Handler) Identify(c echo.Context) error {
	req, err := utils.BindRequest[resolver.IdentifyRequest](c)
	if err != nil {
		return err
	}
	req.BrandID = brandOr(c, req.BrandID)

	result, err := h.resolver.Identify(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// LinkOnLogin links a session to a customer on login
// @Router /identity/link-login [post]
func (h *Handler) LinkOnLogin(c echo.Context) error {
	var req resolver.LinkRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.BrandID = brandOr(c, req.BrandID)

	// The resolver reports a missing email/phone/customerId before anything else.
	result, err := h.resolver.LinkOnLogin(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// LinkExternalSession links a Braze or Amplitude session to a customer by email
// @Router /identity/link-external-session [post]
func (h *Handler) LinkExternalSession(c echo.Context) error {
	req, err := utils.BindRequest[resolver.LinkExternalRequest](c)
	if err != nil {
		return err
	}
	req.BrandID = brandOr(c, req.BrandID)

	result, err := h.resolver.LinkExternalSessionToCustomer(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// LinkInternalSession links an internal session to a customer by email
// @Router /identity/link-internal-session [post]
func (h *Handler) LinkInternalSession(c echo.Context) error {
	req, err := utils.BindRequest[resolver.LinkInternalRequest](c)
	if err != nil {
		return err
	}
	req.BrandID = brandOr(c, req.BrandID)

	result, err := h.resolver.LinkInternalSessionToCustomer(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// LinkInternalToExisting stitches an internal session to the customer's external sessions
// @Router /identity/link-internal-to-existing [post]
func (h *Handler) LinkInternalToExisting(c echo.Context) error {
	req, err := utils.BindRequest[resolver.StitchRequest](c)
	if err != nil {
		return err
	}
	req.BrandID = brandOr(c, req.BrandID)

	result, err := h.resolver.StitchInternalToExisting(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CreateOrUpdateCustomerSession upserts an internal session
// @Router /identity/customer-session [post]
func (h *Handler) CreateOrUpdateCustomerSession(c echo.Context) error {
	req, err := utils.BindRequest[resolver.CustomerSessionRequest](c)
	if err != nil {
		return err
	}
	req.BrandID = brandOr(c, req.BrandID)

	result, err := h.resolver.CreateOrUpdateCustomerSession(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetCustomerSession returns a session with its customer and brand
// @Router /identity/customer-session [get]
func (h *Handler) GetCustomerSession(c echo.Context) error {
	result, err := h.resolver.GetCustomerSession(c.Request().Context(), c.QueryParam("internalSessionId"))
	if err != nil {
		return err
	}
	if result == nil {
		result = &models.SessionGraph{}
	}
	return c.JSON(http.StatusOK, result)
}

// UpdateCustomerSession refreshes an existing session. Unknown sessions yield null fields.
// @Router /identity/update-customer-session [post]
func (h *Handler) UpdateCustomerSession(c echo.Context) error {
	req, err := utils.BindRequest[resolver.CustomerSessionRequest](c)
	if err != nil {
		return err
	}

	result, err := h.resolver.UpdateCustomerSession(c.Request().Context(), req)
	if err != nil {
		return err
	}
	if result == nil {
		result = &resolver.CustomerSessionResult{}
	}
	return c.JSON(http.StatusOK, result)
}

// CreateInternalSession starts a new internal session
// @Router /identity/internal-session [post]
func (h *Handler) CreateInternalSession(c echo.Context) error {
	req, err := utils.BindRequest[resolver.CreateInternalSessionRequest](c)
	if err != nil {
		return err
	}
	req.BrandID = brandOr(c, req.BrandID)

	result, err := h.resolver.CreateInternalSession(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// GetCustomerForSession resolves a provider session id to its customer
// @Router /identity/customer-for-session [get]
func (h *Handler) GetCustomerForSession(c echo.Context) error {
	provider := models.Provider(c.QueryParam("provider"))
	result, err := h.resolver.GetCustomerForSession(c.Request().Context(), provider, c.QueryParam("externalSessionId"))
	if err != nil {
		return err
	}
	if result == nil {
		result = &models.SessionGraph{}
	}
	return c.JSON(http.StatusOK, result)
}

// QuickIdentifyInternal looks a session up by internal id
// @Router /identity/quick-identify-internal [get]
func (h *Handler) QuickIdentifyInternal(c echo.Context) error {
	internalSessionID := c.QueryParam("internalSessionId")
	if internalSessionID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "internalSessionId is required").AddMetaValue("field", "internalSessionId")
	}

	result, err := h.resolver.QuickIdentify(c.Request().Context(), resolver.QuickIdentifyRequest{InternalSessionID: internalSessionID})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// QuickIdentifyExternal looks a session up by provider session id
// @Router /identity/quick-identify-external [get]
func (h *Handler) QuickIdentifyExternal(c echo.Context) error {
	req := resolver.QuickIdentifyRequest{
		Provider:          models.Provider(c.QueryParam("provider")),
		ExternalSessionID: c.QueryParam("externalSessionId"),
		BrandID:           brandOr(c, c.QueryParam("brandId")),
	}
	if req.Provider == "" || req.ExternalSessionID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "provider and externalSessionId are required")
	}

	result, err := h.resolver.QuickIdentify(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// FindCustomerBySession tries each supplied session key in priority order
// @Router /identity/find-customer-by-session [get]
func (h *Handler) FindCustomerBySession(c echo.Context) error {
	keys := models.SessionKeys{
		InternalSessionID: c.QueryParam("internalSessionId"),
		BrazeSession:      c.QueryParam("brazeSession"),
		AmplitudeSession:  c.QueryParam("amplitudeSession"),
		Email:             c.QueryParam("email"),
	}

	result, err := h.resolver.FindCustomerBySession(c.Request().Context(), keys)
	if err != nil {
		return err
	}
	if result == nil {
		result = &models.SessionGraph{}
	}
	return c.JSON(http.StatusOK, result)
}

// FindCustomer returns the customer behind any of the supplied session ids
// @Router /identity/find-customer [get]
func (h *Handler) FindCustomer(c echo.Context) error {
	req, err := utils.BindRequest[resolver.FindCustomerRequest](c)
	if err != nil {
		return err
	}

	customer, err := h.resolver.FindCustomerByAnySession(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"customer": customer})
}

// GetCustomerWithSessions returns a customer and all of its sessions
// @Router /identity/customer-with-sessions [get]
func (h *Handler) GetCustomerWithSessions(c echo.Context) error {
	email := c.QueryParam("email")
	result, err := h.resolver.GetCustomerWithSessions(c.Request().Context(), email)
	if err != nil {
		return err
	}
	if result == nil {
		return notFound("customer %q not found", email)
	}
	return c.JSON(http.StatusOK, result)
}

// GetCustomerLatestSession returns the customer's most recent session
// @Router /identity/customer-latest-session [get]
func (h *Handler) GetCustomerLatestSession(c echo.Context) error {
	email := c.QueryParam("email")
	result, err := h.resolver.GetCustomerLatestSession(c.Request().Context(), email)
	if err != nil {
		return err
	}
	if result == nil {
		return notFound("customer %q not found", email)
	}
	return c.JSON(http.StatusOK, result)
}

// GetCustomerLoyaltyProfile returns cross-brand loyalty metrics for a customer
// @Router /identity/customer-loyalty-profile [get]
func (h *Handler) GetCustomerLoyaltyProfile(c echo.Context) error {
	email := c.QueryParam("email")
	result, err := h.resolver.GetCustomerLoyaltyProfile(c.Request().Context(), email)
	if err != nil {
		return err
	}
	if result == nil {
		return notFound("customer %q not found", email)
	}
	return c.JSON(http.StatusOK, result)
}

// ListCustomerActivity lists loyalty metrics for every customer passing the filters
// @Router /identity/all-customers-activity [get]
func (h *Handler) ListCustomerActivity(c echo.Context) error {
	var filters models.LoyaltyFilters
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filters); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	activity, err := h.resolver.ListCustomerActivity(c.Request().Context(), filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"customers": activity,
		"count":     len(activity),
	})
}

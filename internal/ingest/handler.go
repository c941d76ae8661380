package ingest

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beacon/internal/constants"
	"beacon/internal/enrich/provider"
	"beacon/internal/identity"
	"beacon/internal/logger"
	"beacon/internal/pipeline"
	"beacon/internal/webhook"
	"beacon/pkg/errors"
	"beacon/pkg/middleware"
)

// Request bodies are read whole for shape detection and webhook signing.
const maxBodyBytes = 4 << 20

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	Pipeline       *pipeline.Service
	Location       provider.LocationResolver
	DirectLocation provider.LocationResolver
	BTCBalance     provider.BalanceProvider
	SatsBalance    provider.BalanceProvider
	Creator        provider.CreatorStatusProvider
	Sentry         *webhook.SentryService
	AccessToken    string
}

func NewHandler(
	pipelineSvc *pipeline.Service,
	location provider.LocationResolver,
	directLocation provider.LocationResolver,
	btcBalance provider.BalanceProvider,
	satsBalance provider.BalanceProvider,
	creator provider.CreatorStatusProvider,
	sentry *webhook.SentryService,
	accessToken string,
	log logger.Logger,
) *Handler {
	return &Handler{
		BaseHandler:    BaseHandler{Logger: log},
		Pipeline:       pipelineSvc,
		Location:       location,
		DirectLocation: directLocation,
		BTCBalance:     btcBalance,
		SatsBalance:    satsBalance,
		Creator:        creator,
		Sentry:         sentry,
		AccessToken:    accessToken,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		authed := api.Group("")
		authed.Use(middleware.BearerAuthMiddleware(h.AccessToken))
		{
			authed.POST("/send_event", h.SendEvent)
			authed.GET("/ip/:ip", h.GetIP)
		}

		api.POST("/send_bigquery", h.SendWarehouse)
		api.GET("/ip_v2/:ip", h.GetIPDirect)
		api.GET("/my_ip", h.MyIP)
		api.GET("/my_timezone", h.MyTimezone)
		api.GET("/btc_balance/:principal", h.BTCBalanceOf)
		api.GET("/sats_balance/:principal", h.SatsBalanceOf)
		api.GET("/is_canister_creator/:principal", h.IsCanisterCreator)
		api.POST("/sentry", h.SentryWebhook)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// SendEvent is the primary ingestion endpoint: full enrichment and fanout to
// every sink with tracking authoritative.
func (h *Handler) SendEvent(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.Pipeline.ProcessEvents(c.Request.Context(), body, clientIP(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// SendWarehouse accepts events bound for the warehouse and stream only, with
// geo enrichment and the warehouse authoritative.
func (h *Handler) SendWarehouse(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.Pipeline.ProcessWarehouse(c.Request.Context(), body, clientIP(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) GetIP(c *gin.Context) {
	h.resolveIP(c, h.Location)
}

// GetIPDirect bypasses the geo cache and queries the resolver directly.
func (h *Handler) GetIPDirect(c *gin.Context) {
	h.resolveIP(c, h.DirectLocation)
}

func (h *Handler) resolveIP(c *gin.Context, resolver provider.LocationResolver) {
	ip := c.Param("ip")
	if net.ParseIP(ip) == nil {
		h.HandleError(c, errors.ErrIPConfig.WithMessage("Invalid IP address"))
		return
	}

	location, err := resolver.Resolve(c.Request.Context(), ip)
	if err != nil {
		if err == provider.ErrNotFound {
			h.HandleError(c, errors.ErrNotFound.WithMessage("No location data for IP"))
			return
		}
		h.HandleError(c, errors.ErrIPConfig.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, location)
}

func (h *Handler) MyIP(c *gin.Context) {
	c.JSON(http.StatusOK, clientIP(c))
}

func (h *Handler) MyTimezone(c *gin.Context) {
	ip := clientIP(c)
	location, err := h.Location.Resolve(c.Request.Context(), ip)
	if err != nil {
		if err == provider.ErrNotFound {
			h.HandleError(c, errors.ErrNotFound.WithMessage("No location data for IP"))
			return
		}
		h.HandleError(c, errors.ErrIPConfig.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, location.Timezone)
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

// BTCBalanceOf reports the balance in whole BTC. The provider reports e8s.
func (h *Handler) BTCBalanceOf(c *gin.Context) {
	principal, ok := h.principalParam(c)
	if !ok {
		return
	}

	balance, err := h.BTCBalance.Balance(c.Request.Context(), principal)
	if err != nil {
		h.HandleError(c, errors.ErrProvider.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Balance: balance / 1e8})
}

func (h *Handler) SatsBalanceOf(c *gin.Context) {
	principal, ok := h.principalParam(c)
	if !ok {
		return
	}

	balance, err := h.SatsBalance.Balance(c.Request.Context(), principal)
	if err != nil {
		h.HandleError(c, errors.ErrProvider.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Balance: balance})
}

func (h *Handler) IsCanisterCreator(c *gin.Context) {
	principal, ok := h.principalParam(c)
	if !ok {
		return
	}

	isCreator, err := h.Creator.IsCreator(c.Request.Context(), principal)
	if err != nil {
		h.HandleError(c, errors.ErrProvider.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, isCreator)
}

// SentryWebhook authenticates and relays alerting webhook deliveries. The
// signature covers the raw body, so the body is read before any parsing.
func (h *Handler) SentryWebhook(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	signature := c.GetHeader(constants.SentrySignatureHeader)
	if err := h.Sentry.Process(c.Request.Context(), body, signature); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) principalParam(c *gin.Context) (string, bool) {
	text := c.Param("principal")
	principal, err := identity.Parse(text)
	if err != nil {
		h.HandleError(c, errors.ErrInvalidIdentity.WithCause(err))
		return "", false
	}
	return principal.String(), true
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.ErrInvalidPayloadShape.WithCause(err).WithMessage("Failed to read request body")
	}
	return body, nil
}

// clientIP is the default IP for records that do not carry one: the first
// x-forwarded-for entry when the header is present, otherwise the socket
// peer.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("x-forwarded-for"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

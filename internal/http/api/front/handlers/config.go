package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/settings"
)

// PublicConfigHandler serves unauthenticated site configuration.
type PublicConfigHandler struct {
	pricing config.PricingConfig
}

// NewPublicConfigHandler constructs a PublicConfigHandler.
func NewPublicConfigHandler(pricing config.PricingConfig) *PublicConfigHandler {
	return &PublicConfigHandler{pricing: pricing}
}

// publicConfigResponse is the response payload for public config.
type publicConfigResponse struct {
	SiteName             string              `json:"site_name"`
	RegistrationDisabled bool                `json:"registration_disabled"`
	Pricing              publicPricingConfig `json:"pricing"`
}

// publicPricingConfig exposes the storage price schedule.
type publicPricingConfig struct {
	BytesPerUnit int64 `json:"bytes_per_unit"`
	PricePerUnit int64 `json:"price_per_unit"`
}

// Get returns public configuration for the front UI.
func (h *PublicConfigHandler) Get(c *gin.Context) {
	siteName := settings.StringValue(settings.SiteNameKey)
	if siteName == "" {
		siteName = settings.DefaultSiteName
	}
	c.JSON(http.StatusOK, publicConfigResponse{
		SiteName:             siteName,
		RegistrationDisabled: settings.BoolValue(settings.RegistrationDisabledKey, settings.DefaultRegistrationDisabled),
		Pricing: publicPricingConfig{
			BytesPerUnit: h.pricing.BytesPerUnit,
			PricePerUnit: h.pricing.PricePerUnit,
		},
	})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/cache"
	"github.com/use-agent/offersync/extractor"
	"github.com/use-agent/offersync/models"
)

// Extract returns a handler for POST /api/v1/extract.
//
// It runs the registered extractor for data_key on a posted page snapshot.
// Identical snapshots are answered from the cache.
func Extract(reg *extractor.Registry, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		var brand models.Brand
		if req.CruiseLine != "" {
			b, ok := models.ParseBrand(req.CruiseLine)
			if !ok {
				respondError(c, models.NewSyncError(models.ErrCodeInvalidInput, "unknown cruise line "+req.CruiseLine, nil))
				return
			}
			brand = b
		}

		key := cache.Key(brand, req.DataKey, req.URL, req.HTML)
		if cc != nil && req.ExpectedCount == 0 {
			if cached, hit := cc.Get(key); hit {
				cached.CacheStatus = "hit"
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		res, err := reg.Extract(c.Request.Context(), req.DataKey, &extractor.Snapshot{
			URL:           req.URL,
			HTML:          req.HTML,
			Brand:         brand,
			ExpectedCount: req.ExpectedCount,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		resp := models.ExtractResponse{
			Success:     true,
			DataKey:     req.DataKey,
			Data:        res.Payload,
			Diagnostics: res.Diagnostics,
			Partial:     res.Partial,
		}
		if cc != nil && req.ExpectedCount == 0 {
			cc.Set(key, resp)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

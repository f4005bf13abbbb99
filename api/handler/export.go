package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/bridge"
	"github.com/use-agent/offersync/export"
	"github.com/use-agent/offersync/models"
	"github.com/use-agent/offersync/store"
)

// OfferArchive returns the offers payload of an earlier run.
type OfferArchive interface {
	LastOffers(ctx context.Context) (json.RawMessage, error)
}

// ExportOffers returns a handler for GET /api/v1/export/offers.csv.
//
// The offers of the current state are used when captured, otherwise the last
// offers ever saved.
func ExportOffers(ctrl bridge.Controller, archive OfferArchive) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		st, err := ctrl.Snapshot(ctx)
		if err != nil {
			respondError(c, models.NewSyncError(models.ErrCodeInternal, "state unavailable", err))
			return
		}

		brand := st.CruiseLine
		payload := st.CapturedData["offers"]
		if len(payload) == 0 && archive != nil {
			payload, err = archive.LastOffers(ctx)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				respondError(c, models.NewSyncError(models.ErrCodeInternal, "offer archive unavailable", err))
				return
			}
		}
		if brand == "" {
			brand = models.BrandRoyal
		}

		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, export.Flatten(brand, payload)); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}

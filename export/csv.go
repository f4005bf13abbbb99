package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/use-agent/offersync/models"
)

// WriteCSV writes a header row followed by one row per record. Fields with
// commas, quotes or line breaks are quoted and inner quotes doubled.
func WriteCSV(w io.Writer, records []models.OfferRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.OfferRecordHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename is the download name for an export made at t.
func Filename(t time.Time) string {
	return "offers-" + t.Format("2006-01-02") + ".csv"
}

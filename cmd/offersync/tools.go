package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/offersync/config"
	"github.com/use-agent/offersync/export"
	"github.com/use-agent/offersync/extractor"
	"github.com/use-agent/offersync/models"
	"github.com/use-agent/offersync/store"
)

func newExtractCmd() *cobra.Command {
	var (
		dataKey  string
		brand    string
		pageURL  string
		expected int
	)
	cmd := &cobra.Command{
		Use:   "extract <page.html>",
		Short: "Run an extractor against a saved page, for tuning the vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}
			cfg := config.Load()
			vocab, err := config.LoadVocabulary(cfg.Extractor.VocabularyFile)
			if err != nil {
				return err
			}
			reg, err := extractor.NewRegistry(vocab)
			if err != nil {
				return err
			}

			snap := &extractor.Snapshot{URL: pageURL, HTML: string(raw), ExpectedCount: expected}
			if brand != "" {
				b, ok := models.ParseBrand(brand)
				if !ok {
					return fmt.Errorf("unknown cruise line %q", brand)
				}
				snap.Brand = b
			}
			res, err := reg.Extract(cmd.Context(), dataKey, snap)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(models.ExtractResponse{
				Success:     true,
				DataKey:     dataKey,
				Data:        res.Payload,
				Diagnostics: res.Diagnostics,
				Partial:     res.Partial,
			})
		},
	}
	cmd.Flags().StringVarP(&dataKey, "key", "k", "offers", "data key of the step (offers, loyalty, upcomingCruises, courtesyHolds)")
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "cruise line (royal or celebrity); detected from --url when empty")
	cmd.Flags().StringVar(&pageURL, "url", "", "address the page was saved from, used to resolve links")
	cmd.Flags().IntVar(&expected, "expected", 0, "number of offers the page is known to hold")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		input  string
		brand  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write captured offers as CSV",
		Long:  "export flattens an offers payload into CSV. Without --input it uses the offers of the last saved run.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := models.BrandRoyal
			if brand != "" {
				parsed, ok := models.ParseBrand(brand)
				if !ok {
					return fmt.Errorf("unknown cruise line %q", brand)
				}
				b = parsed
			}

			var payload json.RawMessage
			if input != "" {
				raw, err := os.ReadFile(input)
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				payload = raw
			} else {
				cfg := config.Load()
				st, err := store.Open(cfg.Store.Driver, cfg.Store.DataDir)
				if err != nil {
					return err
				}
				defer st.Close()
				if saved, ok, err := st.Load(cmd.Context()); err == nil && ok && brand == "" && saved.CruiseLine != "" {
					b = saved.CruiseLine
				}
				payload, err = st.LastOffers(cmd.Context())
				if errors.Is(err, store.ErrNotFound) {
					return errors.New("no offers have been captured yet")
				}
				if err != nil {
					return err
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				if output == "auto" {
					output = export.Filename(time.Now())
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			records := export.Flatten(b, payload)
			if err := export.WriteCSV(w, records); err != nil {
				return err
			}
			if output != "" {
				_, err := fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d offers to %s\n", len(records), output)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "offers payload JSON file")
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "cruise line written to the Brand column")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file; "auto" names it offers-<date>.csv`)
	return cmd
}

func newVocabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vocab",
		Short: "Print the effective extraction vocabulary as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vocab, err := config.LoadVocabulary(config.Load().Extractor.VocabularyFile)
			if err != nil {
				return err
			}
			out, err := config.MarshalVocabulary(vocab)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

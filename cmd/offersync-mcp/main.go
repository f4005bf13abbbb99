package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/offersync/models"
)

func main() {
	apiURL := os.Getenv("OFFERSYNC_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8787"
	}
	c := &client{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  os.Getenv("OFFERSYNC_API_KEY"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}

	s := server.NewMCPServer(
		"offersync",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("start_sync",
		mcp.WithDescription("Start syncing casino offers, upcoming cruises, courtesy holds and loyalty status from the logged-in browser tab. Fails if a sync is already running."),
		mcp.WithNumber("tab_id",
			mcp.Description("Tab to drive; defaults to the active tab"),
		),
		mcp.WithString("cruise_line",
			mcp.Description("Cruise line; detected from the tab's address when omitted"),
			mcp.Enum("royal", "celebrity"),
		),
	), handleStartSync(c))

	s.AddTool(mcp.NewTool("stop_sync",
		mcp.WithDescription("Stop the running sync. Steps already captured are kept."),
	), handleStopSync(c))

	s.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Return the current sync state: running flag, step, last progress message and summary counts."),
	), handleGetState(c))

	s.AddTool(mcp.NewTool("export_offers_csv",
		mcp.WithDescription("Return the captured casino offers as CSV, one row per offer sailing."),
	), handleExportOffers(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// client calls the offersync HTTP API.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

// apiError extracts the error message of a failed call.
func apiError(status int, body []byte) string {
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != nil {
		return fmt.Sprintf("%s: %s", e.Error.Code, e.Error.Message)
	}
	return fmt.Sprintf("API returned status %d", status)
}

func handleStartSync(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req models.StartRequest
		if id := request.GetInt("tab_id", 0); id > 0 {
			req.TabID = &id
		}
		req.CruiseLine = request.GetString("cruise_line", "")

		status, body, err := c.do(ctx, http.MethodPost, "/api/v1/sync/start", req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var res models.StartResult
		if err := json.Unmarshal(body, &res); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !res.Success {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Sync started (run %s). Call get_state to follow progress.", res.RunID)), nil
	}
}

func handleStopSync(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, body, err := c.do(ctx, http.MethodPost, "/api/v1/sync/stop", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		return mcp.NewToolResultText("Sync stopped."), nil
	}
}

func handleGetState(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, body, err := c.do(ctx, http.MethodGet, "/api/v1/sync/state", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		var st models.SyncState
		if err := json.Unmarshal(body, &st); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse state: %v", err)), nil
		}
		return mcp.NewToolResultText(describeState(st)), nil
	}
}

func handleExportOffers(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, body, err := c.do(ctx, http.MethodGet, "/api/v1/export/offers.csv", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// describeState renders a state for a chat reply.
func describeState(st models.SyncState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %s", st.Status)
	if st.CruiseLine != "" {
		fmt.Fprintf(&sb, " (%s)", st.CruiseLine)
	}
	fmt.Fprintf(&sb, "\nStep: %d of %d\n", st.Step, st.TotalSteps)
	if st.LastProgress != nil && st.LastProgress.Message != "" {
		fmt.Fprintf(&sb, "Last update: %s\n", st.LastProgress.Message)
	}
	if s := st.Summary; s != nil {
		fmt.Fprintf(&sb, "Captured %d steps: %d offers, %d upcoming cruises, %d courtesy holds, loyalty %v\n",
			s.CapturedSteps, s.Offers, s.UpcomingCruises, s.CourtesyHolds, s.LoyaltyCaptured)
		if len(s.SkippedSteps) > 0 {
			fmt.Fprintf(&sb, "Skipped: %s\n", strings.Join(s.SkippedSteps, ", "))
		}
	}
	return sb.String()
}

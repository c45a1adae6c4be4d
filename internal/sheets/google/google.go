// Package google writes monthly dinner summaries to a Google spreadsheet,
// one tab per month.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"dinners/internal/core"
	"dinners/internal/log"
	ports "dinners/internal/sheets"
)

// TabPrefix names the per-month tabs: "Dinners 2024-03".
const TabPrefix = "Dinners"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

var _ ports.SummaryWriter = (*Client)(nil)

// New creates a client for spreadsheetID. Without options the service
// authenticates with application default credentials.
func New(ctx context.Context, spreadsheetID string, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger.WithComponent(log.ComponentSheets)}, nil
}

// NewWithServiceAccount authenticates with a service account. credentials is
// either the inline JSON key or a path to it.
func NewWithServiceAccount(ctx context.Context, spreadsheetID, credentials string, logger *log.Logger) (*Client, error) {
	credentialsJSON, err := loadCredentials(credentials)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID, logger,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func loadCredentials(credentials string) ([]byte, error) {
	credentials = strings.TrimSpace(credentials)
	switch {
	case credentials == "":
		return nil, errors.New("missing service account credentials")
	case strings.HasPrefix(credentials, "{"):
		return []byte(credentials), nil
	default:
		data, err := os.ReadFile(credentials)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
}

// TabName is the tab holding ym's summary.
func TabName(ym core.YearMonth) string {
	return TabPrefix + " " + ym.String()
}

// WriteMonthSummary replaces the contents of the month's tab, creating the
// tab on first export.
func (c *Client) WriteMonthSummary(ctx context.Context, s ports.MonthSummary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := TabName(s.Month)
	if err := c.ensureTab(ctx, title); err != nil {
		return err
	}

	all := fmt.Sprintf("'%s'!A:Z", title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, all, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", title, err)
	}
	rows := summaryRows(s)
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1", title), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Exported month summary",
		log.FieldSheet, title,
		log.FieldRecords, len(s.Dinners))
	return nil
}

func (c *Client) ensureTab(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created month tab", log.FieldSheet, title)
	return nil
}

// summaryRows lays a summary out as the totals table, a blank row, then one
// row per dinner. Amounts are written as numbers.
func summaryRows(s ports.MonthSummary) [][]any {
	rows := [][]any{{"Person", "Total"}}
	for _, t := range s.Totals {
		rows = append(rows, []any{string(t.Person), t.Amount.InexactFloat64()})
	}
	rows = append(rows, []any{"Total", s.Total().InexactFloat64()})
	rows = append(rows, []any{})
	rows = append(rows, []any{"Date", "Attendees", "Price per person", "Cost"})
	for _, d := range s.Dinners {
		names := make([]string, 0, len(d.Attendees))
		for _, p := range d.Attendees {
			names = append(names, string(p))
		}
		rows = append(rows, []any{
			d.Date.String(),
			strings.Join(names, ", "),
			d.Price.InexactFloat64(),
			d.Cost().InexactFloat64(),
		})
	}
	return rows
}

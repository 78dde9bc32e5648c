package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const lastColumn = "J"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	headerOnce sync.Once
	headerErr  error
}

// Ensure interface conformance
var (
	_ ports.EventWriter = (*Client)(nil)
	_ ports.RowLister   = (*Client)(nil)
)

// New creates a Sheets client writing to "<year> <sheetName>" of the given
// spreadsheet. Without opts, a user OAuth client and token are used when
// GOOGLE_OAUTH_CLIENT_* is set; otherwise service account credentials are
// read from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Ledger"
	}

	if len(opts) == 0 {
		opt, err := oauthOption(ctx)
		switch {
		case err == nil:
			slog.InfoContext(ctx, "Using OAuth user credentials for Google Sheets")
			opts = []goption.ClientOption{opt}
		case errors.Is(err, errOAuthNotConfigured):
			creds, err := loadCredentials(ctx)
			if err != nil {
				return nil, err
			}
			opts = []goption.ClientOption{
				goption.WithCredentialsJSON(creds),
				goption.WithScopes(gsheet.SpreadsheetsScope),
			}
		default:
			return nil, err
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet", spreadsheetID)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     yearPrefixedName(sheetName, time.Now().Year()),
	}, nil
}

func loadCredentials(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// SheetName is the year-prefixed tab rows are written to.
func (c *Client) SheetName() string { return c.sheetName }

// AppendRow appends r below the last row of the sheet, writing the header
// first if the sheet is empty. It returns the updated range.
func (c *Client) AppendRow(ctx context.Context, r ports.Row) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	c.headerOnce.Do(func() { c.headerErr = c.ensureHeader(ctx) })
	if c.headerErr != nil {
		return "", c.headerErr
	}

	rng := fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
	vr := &gsheet.ValueRange{Values: [][]any{r.Values()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append row to %s: %w", c.sheetName, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

func (c *Client) ensureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", c.sheetName, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", c.sheetName, err)
	}
	return nil
}

// ListRows reads every exported row below the header. Rows that do not parse
// are skipped.
func (c *Client) ListRows(ctx context.Context) ([]ports.Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A2:%s", c.sheetName, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]ports.Row, 0, len(resp.Values))
	for i, raw := range resp.Values {
		r, err := parseRow(toStrings(raw))
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable row", "row", i+2, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRow(cols []string) (ports.Row, error) {
	if len(cols) < len(ports.Header) {
		return ports.Row{}, fmt.Errorf("expected %d columns, got %d", len(ports.Header), len(cols))
	}
	id, err := strconv.ParseInt(cols[0], 10, 64)
	if err != nil {
		return ports.Row{}, fmt.Errorf("event id: %w", err)
	}
	occurred, err := time.Parse(time.RFC3339, cols[1])
	if err != nil {
		return ports.Row{}, fmt.Errorf("occurred: %w", err)
	}
	incomes, err := strconv.Atoi(cols[6])
	if err != nil {
		return ports.Row{}, fmt.Errorf("incomes: %w", err)
	}
	outcomes, err := strconv.Atoi(cols[7])
	if err != nil {
		return ports.Row{}, fmt.Errorf("outcomes: %w", err)
	}
	inTotal, err := decimal.NewFromString(cols[8])
	if err != nil {
		return ports.Row{}, fmt.Errorf("income total: %w", err)
	}
	outTotal, err := decimal.NewFromString(cols[9])
	if err != nil {
		return ports.Row{}, fmt.Errorf("outcome total: %w", err)
	}
	return ports.Row{
		EventID:      id,
		OccurredAt:   occurred,
		Owner:        cols[2],
		Kind:         core.EventKind(cols[3]),
		Category:     cols[4],
		Detail:       cols[5],
		Incomes:      incomes,
		Outcomes:     outcomes,
		IncomeTotal:  inTotal,
		OutcomeTotal: outTotal,
	}, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

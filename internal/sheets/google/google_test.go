package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
)

// fakeSheets serves the subset of the Sheets values API the client uses.
type fakeSheets struct {
	mu     sync.Mutex
	header []any
	rows   [][]any
	calls  []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, vr.Values...)
		n := len(f.rows) + 1
		json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": fmt.Sprintf("2025 Ledger!A%d:J%d", n, n)},
		})
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		var vr struct {
			Values [][]any `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&vr)
		if len(vr.Values) > 0 {
			f.header = vr.Values[0]
		}
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": "A1:J1"})
	case r.Method == http.MethodGet && strings.Contains(path, "A1:J1"):
		f.calls = append(f.calls, "get-header")
		vals := [][]any{}
		if f.header != nil {
			vals = append(vals, f.header)
		}
		json.NewEncoder(w).Encode(map[string]any{"values": vals})
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get-rows")
		json.NewEncoder(w).Encode(map[string]any{"values": f.rows})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-id", "2025 Ledger",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Ledger")
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func clearOAuthEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE",
		"GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE",
	} {
		t.Setenv(k, "")
	}
}

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestNew_MissingCredentials(t *testing.T) {
	clearOAuthEnv(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), "sheet-id", "Ledger")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_OAuthClientWithoutToken(t *testing.T) {
	clearOAuthEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testOAuthClient)

	_, err := New(context.Background(), "sheet-id", "Ledger")
	if err == nil || !strings.Contains(err.Error(), "missing oauth token") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_InvalidOAuthClient(t *testing.T) {
	clearOAuthEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "invalid-json")
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{"access_token":"test"}`)

	_, err := New(context.Background(), "sheet-id", "Ledger")
	if err == nil || !strings.Contains(err.Error(), "parse oauth client") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_OAuthUserCredentials(t *testing.T) {
	clearOAuthEnv(t)
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(tokenPath, &oauth2.Token{AccessToken: "test", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testOAuthClient)
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", tokenPath)

	c, err := New(context.Background(), "sheet-id", "Ledger")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasSuffix(c.SheetName(), " Ledger") {
		t.Fatalf("unexpected sheet name %q", c.SheetName())
	}
}

func TestSaveTokenPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(path, &oauth2.Token{AccessToken: "abc"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
	var tok oauth2.Token
	b, _ := os.ReadFile(path)
	if err := json.Unmarshal(b, &tok); err != nil || tok.AccessToken != "abc" {
		t.Fatalf("token round trip failed: %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("inline json wins", func(t *testing.T) {
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/does/not/exist")
		b, err := loadCredentials(ctx)
		if err != nil || string(b) != `{"type":"service_account"}` {
			t.Fatalf("got %q, %v", b, err)
		}
	})

	t.Run("application credentials fallback", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sa.json")
		if err := os.WriteFile(path, []byte(`{"k":1}`), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
		b, err := loadCredentials(ctx)
		if err != nil || string(b) != `{"k":1}` {
			t.Fatalf("got %q, %v", b, err)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", filepath.Join(t.TempDir(), "missing.json"))
		if _, err := loadCredentials(ctx); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestAppendRowWritesHeaderOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	row := ports.Row{
		EventID:      1,
		OccurredAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Owner:        "u1",
		Kind:         core.EventTransactionsAppended,
		Category:     "Groceries",
		Detail:       "appended",
		Outcomes:     1,
		OutcomeTotal: decimal.RequireFromString("3.5"),
	}

	ref, err := c.AppendRow(ctx, row)
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if ref != "2025 Ledger!A2:J2" {
		t.Errorf("unexpected ref %q", ref)
	}
	row.EventID = 2
	if _, err := c.AppendRow(ctx, row); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	want := []string{"get-header", "update", "append", "append"}
	if strings.Join(fake.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", fake.calls, want)
	}
	if len(fake.header) != len(ports.Header) || fake.header[0] != "Event" {
		t.Errorf("unexpected header %v", fake.header)
	}
}

func TestListRowsRoundTrip(t *testing.T) {
	fake := &fakeSheets{header: []any{"Event"}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	in := ports.Row{
		EventID:      7,
		OccurredAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Owner:        "u1",
		Kind:         core.EventCategoryDeleted,
		Category:     "Travel",
		Detail:       `merged into "default"`,
		Incomes:      1,
		Outcomes:     2,
		IncomeTotal:  decimal.Zero,
		OutcomeTotal: decimal.Zero,
	}
	if _, err := c.AppendRow(ctx, in); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	fake.mu.Lock()
	fake.rows = append(fake.rows, []any{"not-a-number"})
	fake.mu.Unlock()

	rows, err := c.ListRows(ctx)
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 parsed row, got %d", len(rows))
	}
	got := rows[0]
	if got.EventID != 7 || got.Kind != core.EventCategoryDeleted || got.Outcomes != 2 || !got.OccurredAt.Equal(in.OccurredAt) {
		t.Errorf("unexpected row %+v", got)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Ledger", 2025, "2025 Ledger"},
		{"", 2023, ""},
		{"Event Log", 2022, "2022 Event Log"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

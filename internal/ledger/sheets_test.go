package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeSheet serves the values endpoints for a single spreadsheet
type fakeSheet struct {
	mu     sync.Mutex
	values [][]interface{}
	calls  []string
	// staleHeader makes header reads return nothing, as seen by a writer that
	// checked the sheet before another process filled it
	staleHeader bool
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v4/spreadsheets/sheet-id/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		f.calls = append(f.calls, "append")
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.values = append(f.values, body.Values...)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		f.calls = append(f.calls, "clear")
		f.values = nil
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.Contains(rng, "!A1:") && len(f.values) > 0 {
			f.values[0] = body.Values[0]
		} else {
			f.values = body.Values
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		values := f.values
		if strings.Contains(rng, "!A1:") && len(values) > 0 {
			values = values[:1]
			if f.staleHeader {
				values = nil
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          rng,
			"majorDimension": "ROWS",
			"values":         values,
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestSheetsLedger(t *testing.T, sheet *fakeSheet) *SheetsLedger {
	t.Helper()
	server := httptest.NewServer(sheet)
	t.Cleanup(server.Close)

	l, err := NewSheetsLedger(context.Background(), SheetsOptions{
		SpreadsheetID: "sheet-id",
		SheetName:     "Ledger",
		Endpoint:      server.URL + "/",
	}, option.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return l
}

func TestSheetsLedger_AppendCreatesHeaderOnce(t *testing.T) {
	sheet := &fakeSheet{}
	l := newTestSheetsLedger(t, sheet)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, sampleRow("AAAAAAAAA")))
	require.NoError(t, l.Append(ctx, sampleRow("BBBBBBBBB")))

	require.Len(t, sheet.values, 3)
	assert.Equal(t, "Name", sheet.values[0][0])
	assert.Equal(t, "AAAAAAAAA", sheet.values[1][6])
	assert.Equal(t, "BBBBBBBBB", sheet.values[2][6])

	table, err := l.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Columns, table.Header)
	assert.Equal(t, 2, table.Len())
}

func TestSheetsLedger_RacingWritersKeepOneHeader(t *testing.T) {
	sheet := &fakeSheet{staleHeader: true}
	first := newTestSheetsLedger(t, sheet)
	second := newTestSheetsLedger(t, sheet)
	ctx := context.Background()

	// both writers believe the sheet is empty
	require.NoError(t, first.Append(ctx, sampleRow("AAAAAAAAA")))
	require.NoError(t, second.Append(ctx, sampleRow("BBBBBBBBB")))

	require.Len(t, sheet.values, 3)
	assert.Equal(t, "Name", sheet.values[0][0])
	assert.Equal(t, "AAAAAAAAA", sheet.values[1][6])
	assert.Equal(t, "BBBBBBBBB", sheet.values[2][6])
}

func TestSheetsLedger_ReadAllPadsShortRows(t *testing.T) {
	sheet := &fakeSheet{values: [][]interface{}{
		toCells(Columns),
		{"Asha Rao", "Data Science"},
	}}
	l := newTestSheetsLedger(t, sheet)

	table, err := l.ReadAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, table.Validate())
	assert.Equal(t, "Data Science", table.Rows[0][1])
	assert.Equal(t, "", table.Rows[0][8])
}

func TestSheetsLedger_ReadAllEmpty(t *testing.T) {
	l := newTestSheetsLedger(t, &fakeSheet{})

	table, err := l.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestSheetsLedger_Replace(t *testing.T) {
	sheet := &fakeSheet{}
	l := newTestSheetsLedger(t, sheet)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, sampleRow("OLD000001")))
	require.NoError(t, l.Replace(ctx, NewTable(sampleRow("NEW000001"))))

	require.Len(t, sheet.values, 2)
	assert.Equal(t, "NEW000001", sheet.values[1][6])
	assert.Equal(t, []string{"get", "update", "append", "clear", "update"}, sheet.calls)

	assert.ErrorIs(t, l.Replace(ctx, &Table{}), ErrSchemaMismatch)
}

func TestSheetsLedger_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	}))
	defer server.Close()

	l, err := NewSheetsLedger(context.Background(), SheetsOptions{
		SpreadsheetID: "sheet-id",
		Endpoint:      server.URL + "/",
	}, option.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	err = l.Append(context.Background(), sampleRow("AAAAAAAAA"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read sheet header")
}

func TestNewSheetsLedger_RequiresID(t *testing.T) {
	_, err := NewSheetsLedger(context.Background(), SheetsOptions{})
	assert.Error(t, err)
}

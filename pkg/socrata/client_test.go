package socrata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Options{})

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.httpClient == nil {
		t.Error("httpClient should not be nil")
	}
	if client.rowLimit != DefaultRowLimit {
		t.Errorf("Expected row limit %d, got %d", DefaultRowLimit, client.rowLimit)
	}
	if client.pageSize != DefaultRowLimit {
		t.Errorf("Expected page size to default to the row limit, got %d", client.pageSize)
	}
}

func TestNewClient_PageSizeCapped(t *testing.T) {
	client := NewClient(Options{RowLimit: 100, PageSize: 500})
	if client.pageSize != 100 {
		t.Errorf("Expected page size capped at 100, got %d", client.pageSize)
	}
}

func TestFetchCSV_Paging(t *testing.T) {
	pages := map[string]string{
		"":  "stop_id,boardings\n1,120\n2,340\n",
		"2": "stop_id,boardings\n3,95\n",
	}

	var queries []url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query())
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(pages[r.URL.Query().Get("$offset")]))
	}))
	defer server.Close()

	client := NewClient(Options{RowLimit: 10, PageSize: 2})
	params := url.Values{"daytype": {"Weekday"}}

	table, err := client.FetchCSV(context.Background(), server.URL+"/resource/bus.csv", params)
	if err != nil {
		t.Fatalf("FetchCSV failed: %v", err)
	}

	if len(queries) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(queries))
	}
	if got := queries[0].Get("$limit"); got != "2" {
		t.Errorf("Expected $limit=2, got %q", got)
	}
	if got := queries[0].Get("daytype"); got != "Weekday" {
		t.Errorf("Expected daytype to be forwarded, got %q", got)
	}
	if got := queries[1].Get("$offset"); got != "2" {
		t.Errorf("Expected second page at $offset=2, got %q", got)
	}

	if strings.Join(table.Header, ",") != "stop_id,boardings" {
		t.Errorf("Unexpected header %v", table.Header)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Expected 3 rows with later headers dropped, got %d: %v", len(table.Rows), table.Rows)
	}
	if table.Rows[2][0] != "3" {
		t.Errorf("Expected last row stop 3, got %v", table.Rows[2])
	}

	records := table.Records()
	if len(records) != 4 || records[0][0] != "stop_id" {
		t.Errorf("Records should lead with the header, got %v", records)
	}
}

func TestFetchCSV_StopsAtRowLimit(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		limit, _ := strconv.Atoi(r.URL.Query().Get("$limit"))
		var b strings.Builder
		b.WriteString("id\n")
		for i := 0; i < limit; i++ {
			b.WriteString(strconv.Itoa(i) + "\n")
		}
		w.Write([]byte(b.String()))
	}))
	defer server.Close()

	client := NewClient(Options{RowLimit: 5, PageSize: 2})
	table, err := client.FetchCSV(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("FetchCSV failed: %v", err)
	}

	if len(table.Rows) != 5 {
		t.Errorf("Expected exactly the row limit of 5 rows, got %d", len(table.Rows))
	}
	if requests != 3 {
		t.Errorf("Expected 3 requests (2+2+1), got %d", requests)
	}
}

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"station_id":"40380","rides":"1000"},{"station_id":"41400","rides":"250"}]`))
	}))
	defer server.Close()

	rows, err := NewClient(Options{}).FetchJSON(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("FetchJSON failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[1]["station_id"] != "41400" {
		t.Errorf("Unexpected row %v", rows[1])
	}
}

func TestFetchJSON_MalformedIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": true, "message": "not an array`))
	}))
	defer server.Close()

	rows, err := NewClient(Options{}).FetchJSON(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Malformed JSON should not be an error, got %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestFetchJSON_MalformedLaterPageDiscardsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$offset") == "" {
			w.Write([]byte(`[{"station_id":"40380"},{"station_id":"41400"}]`))
			return
		}
		w.Write([]byte(`[{"station_id":"403`))
	}))
	defer server.Close()

	rows, err := NewClient(Options{RowLimit: 10, PageSize: 2}).FetchJSON(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Malformed JSON should not be an error, got %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected rows from earlier pages to be discarded, got %d", len(rows))
	}
}

func TestFetch_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(Options{})

	_, err := client.FetchCSV(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrStatus) {
		t.Errorf("Expected ErrStatus from FetchCSV, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "500") {
		t.Errorf("Error should carry the status code, got %v", err)
	}

	_, err = client.FetchJSON(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrStatus) {
		t.Errorf("Expected ErrStatus from FetchJSON, got %v", err)
	}
}

func TestFetch_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := NewClient(Options{}).FetchJSON(context.Background(), endpoint, nil)
	if err == nil {
		t.Fatal("Expected an error for a closed server")
	}
	if errors.Is(err, ErrStatus) {
		t.Errorf("Transport failure should not be reported as a status error: %v", err)
	}
}

func TestFetch_AppToken(t *testing.T) {
	var token, agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-App-Token")
		agent = r.Header.Get("User-Agent")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	if _, err := NewClient(Options{Token: "secret"}).FetchJSON(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("FetchJSON failed: %v", err)
	}
	if token != "secret" {
		t.Errorf("Expected X-App-Token header, got %q", token)
	}
	if agent != userAgent {
		t.Errorf("Expected User-Agent %q, got %q", userAgent, agent)
	}
}

func TestFetch_CachedPerQuery(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("id\n1\n"))
	}))
	defer server.Close()

	client := NewClient(Options{})
	ctx := context.Background()
	weekday := url.Values{"daytype": {"Weekday"}}

	for i := 0; i < 3; i++ {
		if _, err := client.FetchCSV(ctx, server.URL, weekday); err != nil {
			t.Fatalf("FetchCSV failed: %v", err)
		}
	}
	if requests != 1 {
		t.Errorf("Expected repeated query to be served from cache, got %d requests", requests)
	}

	if _, err := client.FetchCSV(ctx, server.URL, url.Values{"daytype": {"Sunday"}}); err != nil {
		t.Fatalf("FetchCSV failed: %v", err)
	}
	if requests != 2 {
		t.Errorf("Expected a different query to miss the cache, got %d requests", requests)
	}
}

func TestFetchCSV_InvalidEndpoint(t *testing.T) {
	_, err := NewClient(Options{}).FetchCSV(context.Background(), "://bad", nil)
	if err == nil {
		t.Fatal("Expected an error for an invalid endpoint")
	}
}

package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retreat/internal/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *SheetsService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	return mux, server, newSheetsService(srv, "res_tid", "forms_tid")
}

func testReservation(id int64) *models.Reservation {
	date, _ := models.ParseDate("2024-01-15")
	return &models.Reservation{
		ID: id, ResourceID: 1, ResourceName: "Studio A", ResourceKind: models.KindRoom,
		Date: date, StartTime: models.MustClock("14:00"), EndTime: models.MustClock("17:00"),
		Status: models.StatusPending, BookedBy: "Choir", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {456.0}},
		})
	})
	if err := s.WarmUpCache(ctx); err != nil {
		t.Fatalf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow(123); !ok || row != 2 {
		t.Errorf("Expected row 2 for ID 123, got %d", row)
	}
	if row, ok := s.getCachedRow(456); !ok || row != 4 {
		t.Errorf("Expected row 4 for ID 456, got %d", row)
	}
}

func TestSheetsService_UpsertReservation_Append(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Reservations!A10:N10"},
		})
	})
	if err := s.UpsertReservation(ctx, testReservation(789)); err != nil {
		t.Errorf("UpsertReservation failed: %v", err)
	}
	if row, _ := s.getCachedRow(789); row != 10 {
		t.Errorf("Expected cached row 10, got %d", row)
	}
}

func TestSheetsService_UpsertReservation_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)

	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A2:N2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.UpsertReservation(ctx, testReservation(123)); err != nil {
		t.Fatalf("UpsertReservation failed: %v", err)
	}
	if len(got.Values) != 1 || len(got.Values[0]) != 14 {
		t.Fatalf("Expected one row of 14 cells, got %v", got.Values)
	}
	if got.Values[0][5] != "14:00" || got.Values[0][6] != "17:00" {
		t.Errorf("Unexpected window cells: %v %v", got.Values[0][5], got.Values[0][6])
	}
}

func TestSheetsService_UpdateReservationStatus(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)

	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	}
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!H2:H2", handler)
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!N2:N2", handler)

	if err := s.UpdateReservationStatus(ctx, 123, models.StatusConfirmed); err != nil {
		t.Errorf("UpdateReservationStatus failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 updates, got %d", calls)
	}
}

func TestSheetsService_DeleteReservationRow(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(456, 3)
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A3:N3:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	if err := s.DeleteReservationRow(ctx, 456); err != nil {
		t.Errorf("DeleteReservationRow failed: %v", err)
	}
	if _, ok := s.getCachedRow(456); ok {
		t.Error("Expected 456 to be removed from cache")
	}
	if err := s.DeleteReservationRow(ctx, 456); err != nil {
		t.Errorf("Deleting a missing row should be a no-op, got %v", err)
	}
}

func TestSheetsService_AppendForm(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/forms_tid/values/Forms!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{})
	})
	f := &models.FormSubmission{Kind: models.FormDamageReport, Reference: "ref-1", Email: "a@b.c", Payload: `{"x":1}`, CreatedAt: time.Now()}
	if err := s.AppendForm(ctx, f); err != nil {
		t.Fatalf("AppendForm failed: %v", err)
	}
	if len(got.Values) != 1 || got.Values[0][0] != "ref-1" {
		t.Errorf("Unexpected appended row: %v", got.Values)
	}
}

func TestSheetsService_FindReservationRow(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"999"}}})
	})

	row, err := s.FindReservationRow(ctx, 999)
	if err != nil {
		t.Fatalf("FindReservationRow failed: %v", err)
	}
	if row != 2 {
		t.Errorf("Expected row 2, got %d", row)
	}
	if _, err := s.FindReservationRow(ctx, 1); err != ErrRowNotFound {
		t.Errorf("Expected ErrRowNotFound, got %v", err)
	}
	if _, err := s.FindReservationRow(ctx, 0); err == nil {
		t.Error("Expected error for zero id")
	}
}

func TestFirstRow(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"Reservations!A10:N10", 10, true},
		{"'Forms'!A3", 3, true},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, ok := firstRow(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("firstRow(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"client_email":"sync@project.iam.gserviceaccount.com"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	email, err := ServiceAccountEmail(path)
	if err != nil {
		t.Fatalf("ServiceAccountEmail failed: %v", err)
	}
	if email != "sync@project.iam.gserviceaccount.com" {
		t.Errorf("Unexpected email %q", email)
	}
}

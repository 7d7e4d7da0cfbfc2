package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"retreat/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	reservationsSheet = "Reservations"
	formsSheet        = "Forms"

	// колонки листа Reservations: A..N
	reservationLastCol = "N"
	statusCol          = "H"
	updatedAtCol       = "N"

	timestampLayout = "2006-01-02 15:04:05"
)

var ErrRowNotFound = errors.New("reservation row not found")

type SheetsService struct {
	service             *sheets.Service
	reservationsSheetID string
	formsSheetID        string
	rowCache            map[int64]int
	cacheMu             sync.RWMutex
}

// NewSheetsService authorizes with a service account key file. The row
// cache is warmed in the background and refreshed hourly until ctx ends.
func NewSheetsService(ctx context.Context, credentialsFile, reservationsSheetID, formsSheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	s := newSheetsService(srv, reservationsSheetID, formsSheetID)

	go func() {
		warm := func() {
			wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			_ = s.WarmUpCache(wctx)
		}
		warm()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				warm()
			}
		}
	}()

	return s, nil
}

func newSheetsService(srv *sheets.Service, reservationsSheetID, formsSheetID string) *SheetsService {
	if formsSheetID == "" {
		formsSheetID = reservationsSheetID
	}
	return &SheetsService{
		service:             srv,
		reservationsSheetID: reservationsSheetID,
		formsSheetID:        formsSheetID,
		rowCache:            make(map[int64]int),
	}
}

// TestConnection проверяет доступ к таблице бронирований
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.reservationsSheetID, reservationsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a key file, so operators
// know which account to share the spreadsheets with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.reservationsSheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func reservationRowValues(r *models.Reservation) []interface{} {
	return []interface{}{
		r.ID,
		r.ResourceID,
		r.ResourceName,
		r.ResourceKind,
		r.DateKey(),
		r.StartTime.String(),
		r.EndTime.String(),
		r.Status,
		r.BookedBy,
		r.Contact,
		r.Purpose,
		r.Cost,
		r.CreatedAt.Format(timestampLayout),
		r.UpdatedAt.Format(timestampLayout),
	}
}

// AppendReservation добавляет строку в конец листа
func (s *SheetsService) AppendReservation(ctx context.Context, r *models.Reservation) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.reservationsSheetID, reservationsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(r.ID, row)
		}
	}
	return nil
}

// UpsertReservation updates an existing row or appends a new one.
func (s *SheetsService) UpsertReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	rowIdx, err := s.FindReservationRow(ctx, r.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendReservation(ctx, r)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", reservationsSheet, rowIdx, reservationLastCol, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.reservationsSheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{reservationRowValues(r)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateReservationStatus rewrites the status and updated-at cells.
func (s *SheetsService) UpdateReservationStatus(ctx context.Context, reservationID int64, status string) error {
	rowIdx, err := s.FindReservationRow(ctx, reservationID)
	if err != nil {
		return err
	}

	updates := []struct {
		col   string
		value interface{}
	}{
		{statusCol, status},
		{updatedAtCol, time.Now().Format(timestampLayout)},
	}
	for _, u := range updates {
		rangeData := fmt.Sprintf("%s!%s%d:%s%d", reservationsSheet, u.col, rowIdx, u.col, rowIdx)
		_, err = s.service.Spreadsheets.Values.Update(s.reservationsSheetID, rangeData, &sheets.ValueRange{
			Values: [][]interface{}{{u.value}},
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteReservationRow clears the row of reservationID. A missing row is not an error.
func (s *SheetsService) DeleteReservationRow(ctx context.Context, reservationID int64) error {
	rowIdx, err := s.FindReservationRow(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return nil
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", reservationsSheet, rowIdx, reservationLastCol, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.reservationsSheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCachedRow(reservationID)
	}
	return err
}

// AppendForm appends an accepted form submission to the Forms sheet.
func (s *SheetsService) AppendForm(ctx context.Context, f *models.FormSubmission) error {
	row := []interface{}{
		f.Reference,
		f.Kind,
		f.Email,
		f.CreatedAt.Format(timestampLayout),
		f.Payload,
	}
	_, err := s.service.Spreadsheets.Values.Append(s.formsSheetID, formsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// FindReservationRow locates the 1-based row for reservationID in column A.
func (s *SheetsService) FindReservationRow(ctx context.Context, reservationID int64) (int, error) {
	if reservationID == 0 {
		return 0, fmt.Errorf("reservation id is required")
	}

	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.reservationsSheetID, reservationsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == reservationID {
			rowIdx := i + 1
			s.setCachedRow(reservationID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, ErrRowNotFound
}

func cellID(v interface{}) int64 {
	switch v := v.(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRow extracts the starting row from an A1 range like "Sheet!A10:N10".
func firstRow(a1 string) (int, bool) {
	m := rangeRowRe.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCachedRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

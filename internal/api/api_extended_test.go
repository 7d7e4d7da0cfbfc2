package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"retreat/internal/config"
	"retreat/internal/export"
	"retreat/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGRPCServer_New(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	cfg := config.APIConfig{
		GRPC: config.APIGRPCConfig{Port: 0},
	}

	s, err := NewGRPCServer(&cfg, NewAvailabilityService(nil, nil), nil, &logger)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Addr())

	go func() {
		_ = s.Serve()
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Shutdown(ctx)
}

func TestGRPCServer_TLSMisconfigured(t *testing.T) {
	cfg := config.APIConfig{
		GRPC: config.APIGRPCConfig{Port: 0, TLS: config.APITLSConfig{Enabled: true}},
	}
	_, err := NewGRPCServer(&cfg, NewAvailabilityService(nil, nil), nil, nil)
	assert.Error(t, err)
}

func TestBuildTLSConfig(t *testing.T) {
	t.Run("EmptyPaths", func(t *testing.T) {
		_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
		assert.Error(t, err)
	})

	t.Run("InvalidCert", func(t *testing.T) {
		_, err := buildTLSConfig(config.APITLSConfig{
			Enabled:  true,
			CertFile: "/nonexistent",
			KeyFile:  "/nonexistent",
		})
		assert.Error(t, err)
	})
}

func TestHTTPServer_StartShutdown(t *testing.T) {
	cfg := config.APIConfig{
		HTTP: config.APIHTTPConfig{Enabled: true, Port: 0},
	}
	s := NewHTTPServer(&cfg, Deps{}, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestHTTPServer_PanicRecovered(t *testing.T) {
	s := newTestStack(t, testAPIConfig())

	// сервис без репозитория паникует на nil-интерфейсе
	logger := zerolog.Nop()
	s.deps.Resources = service.NewResourceService(nil, &logger)
	s.handler = NewHTTPServer(testAPIConfig(), s.deps, nil, nil).Handler()

	w := s.do(t, http.MethodGet, "/api/v1/resources/1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	body := `{"purpose":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var v map[string]any
	assert.False(t, decodeJSON(w, req, &v))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestIdempotencyKeyTooLong(t *testing.T) {
	s := newTestStack(t, testAPIConfig())

	w := s.do(t, http.MethodPost, "/api/v1/reservations", s.reservationBody("10:00", "11:00"),
		withHeader(idempotencyHeader, strings.Repeat("k", maxIdempotencyKey+1)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportArchive(t *testing.T) {
	s := newTestStack(t, testAPIConfig())
	dir := t.TempDir()

	logger := zerolog.Nop()
	s.deps.Exporter = export.NewExporter(s.db, dir, &logger)
	s.handler = NewHTTPServer(testAPIConfig(), s.deps, nil, nil).Handler()

	day := bookingDay()
	w := s.do(t, http.MethodGet, "/api/v1/admin/reservations/export?from="+day+"&to="+day, nil, withAdmin)
	require.Equal(t, http.StatusOK, w.Code)

	files, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

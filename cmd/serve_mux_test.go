//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanatlas/spatial-cli/internal/datasource"
)

// multipartUpload builds a multipart body with the given form fields and
// one "file" part per entry in files.
func multipartUpload(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestNewServeMux_HealthEndpoint(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestNewServeMux_UploadAndFetch(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	body, contentType := multipartUpload(t,
		map[string]string{
			"name":        "hk districts",
			"region_id":   "hongkong",
			"owner_email": "gis@example.com",
		},
		map[string]string{"districts.geojson": districtsGeoJSON},
	)

	req := httptest.NewRequest(http.MethodPost, "/datasources", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created datasource.SpatialDataSource
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, datasource.FormatGeoJSON, created.Format)
	assert.Equal(t, 2, created.FeatureCount)

	// Fetch it back by id.
	req = httptest.NewRequest(http.MethodGet, "/datasources/"+created.ID, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var fetched datasource.SpatialDataSource
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "hk districts", fetched.Name)

	// It shows up in the filtered list.
	req = httptest.NewRequest(http.MethodGet, "/datasources?format=geojson&region=hongkong", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var listed []datasource.SpatialDataSource
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	// Delete it, then a fetch misses.
	req = httptest.NewRequest(http.MethodDelete, "/datasources/"+created.ID, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/datasources/"+created.ID, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewServeMux_UploadMissingFilePart(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	body, contentType := multipartUpload(t,
		map[string]string{"name": "hk districts", "region_id": "hongkong"},
		nil,
	)

	req := httptest.NewRequest(http.MethodPost, "/datasources", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "file")
}

func TestNewServeMux_UploadMissingFields(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	body, contentType := multipartUpload(t, nil,
		map[string]string{"districts.geojson": districtsGeoJSON})

	req := httptest.NewRequest(http.MethodPost, "/datasources", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "name")
	assert.Contains(t, rr.Body.String(), "region")
}

func TestNewServeMux_UploadUnsupportedFormatParam(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	body, contentType := multipartUpload(t,
		map[string]string{"name": "hk districts", "region_id": "hongkong", "format": "csv"},
		map[string]string{"districts.geojson": districtsGeoJSON},
	)

	req := httptest.NewRequest(http.MethodPost, "/datasources", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unsupported")
}

func TestNewServeMux_UploadMalformedFile(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	body, contentType := multipartUpload(t,
		map[string]string{"name": "broken", "region_id": "hongkong"},
		map[string]string{"broken.geojson": `{"type": "FeatureColl`},
	)

	req := httptest.NewRequest(http.MethodPost, "/datasources", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNewServeMux_UploadTooLarge(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 64)

	body, contentType := multipartUpload(t,
		map[string]string{"name": "hk districts", "region_id": "hongkong"},
		map[string]string{"districts.geojson": districtsGeoJSON},
	)

	req := httptest.NewRequest(http.MethodPost, "/datasources", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNewServeMux_GetMissing(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/datasources/no-such-id", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}

func TestNewServeMux_DeleteMissing(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	req := httptest.NewRequest(http.MethodDelete, "/datasources/no-such-id", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewServeMux_ListBadPagination(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/datasources?limit=ten", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid limit")
}

func TestNewServeMux_ListEmpty(t *testing.T) {
	mux := newServeMux(newTestCatalog(t), 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/datasources", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

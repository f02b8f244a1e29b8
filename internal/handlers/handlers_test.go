package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dilsidhu13/secdrop/internal/auth"
	"github.com/dilsidhu13/secdrop/internal/config"
	"github.com/dilsidhu13/secdrop/internal/storage"
	"github.com/dilsidhu13/secdrop/internal/transfer"
)

type fixture struct {
	router   *mux.Router
	registry *storage.MemoryRegistry
	protocol *transfer.Protocol
}

type silentNotifier struct{}

func (silentNotifier) Notify(ctx context.Context, destination, message string) error { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	registry := storage.NewMemoryRegistry()
	blobs := storage.NewMemoryStore()
	protocol := transfer.New(registry, blobs, nil, silentNotifier{}, transfer.Options{
		Mode:      config.ModeServer,
		SaltMode:  config.SaltRandom,
		ChunkSize: 64,
		OTPLength: 6,
	}, log)

	router := mux.NewRouter()
	router.Handle("/api/upload/init", NewInitUploadHandler(protocol, log)).Methods("POST")
	router.Handle("/api/upload", NewWholeUploadHandler(protocol, log)).Methods("POST")
	router.Handle("/api/upload/{transfer_id}/chunk/{index}", NewChunkUploadHandler(protocol, log)).Methods("PUT")
	router.Handle("/api/download/{transfer_id}", NewDownloadHandler(protocol, log)).Methods("GET")
	router.Handle("/api/metadata/{id}", NewMetadataHandler(protocol, log)).Methods("GET")
	router.Handle("/api/crypto/request-otp/{id}", NewRequestOTPHandler(protocol, log)).Methods("POST")
	router.Handle("/api/crypto/decrypt/{id}", NewDecryptHandler(protocol, log)).Methods("POST")

	return &fixture{router: router, registry: registry, protocol: protocol}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestInitUpload_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("POST", "/api/upload/init", strings.NewReader("{broken")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest("POST", "/api/upload/init",
		jsonBody(t, InitUploadRequest{Filename: "", TotalChunks: 3})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest("POST", "/api/upload/init",
		jsonBody(t, InitUploadRequest{Filename: "report.pdf", TotalChunks: 0})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitUpload_ReturnsURLs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("POST", "/api/upload/init",
		jsonBody(t, InitUploadRequest{Filename: "report.pdf", TotalChunks: 3})))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp InitUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TransferID)
	assert.Contains(t, resp.UploadURLTemplate, "/api/upload/"+resp.TransferID+"/chunk/{index}")
	assert.Contains(t, resp.DownloadURL, "/api/download/"+resp.TransferID)
}

func TestChunkedFlow_OutOfOrder(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("POST", "/api/upload/init",
		jsonBody(t, InitUploadRequest{Filename: "report.pdf", TotalChunks: 3})))
	require.Equal(t, http.StatusCreated, rec.Code)
	var initResp InitUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))
	id := initResp.TransferID

	chunks := [][]byte{[]byte("alpha-"), []byte("beta-"), []byte("gamma")}

	// premature download
	rec = f.do(httptest.NewRequest("GET", "/api/download/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, idx := range []int{0, 2, 1} {
		req := httptest.NewRequest("PUT",
			fmt.Sprintf("/api/upload/%s/chunk/%d", id, idx), bytes.NewReader(chunks[idx]))
		rec := f.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChunkUploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.Equal(t, idx, resp.Index)
	}

	rec = f.do(httptest.NewRequest("GET", "/api/download/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha-beta-gamma", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"report.pdf"`)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestChunkUpload_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("PUT", "/api/upload/ghost/chunk/0", bytes.NewReader([]byte("x"))))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	initRec := f.do(httptest.NewRequest("POST", "/api/upload/init",
		jsonBody(t, InitUploadRequest{Filename: "a.bin", TotalChunks: 2})))
	var initResp InitUploadResponse
	require.NoError(t, json.Unmarshal(initRec.Body.Bytes(), &initResp))

	rec = f.do(httptest.NewRequest("PUT",
		"/api/upload/"+initResp.TransferID+"/chunk/5", bytes.NewReader([]byte("x"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartUpload(t *testing.T, filename, keyB, recipient string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("keyB", keyB))
	if recipient != "" {
		require.NoError(t, mw.WriteField("recipient", recipient))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestWholeUpload_AndMetadata(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartUpload(t, "secret.doc", "hunter2", "", []byte("document body"))
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp WholeUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.KeyA, "random-salt mode surfaces Key A")
	assert.Contains(t, resp.DownloadURL, resp.ID)

	metaRec := f.do(httptest.NewRequest("GET", "/api/metadata/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, metaRec.Code)
	var meta MetadataResponse
	require.NoError(t, json.Unmarshal(metaRec.Body.Bytes(), &meta))
	assert.Equal(t, "secret.doc", meta.OriginalName)
	assert.Equal(t, "ready", meta.Status)

	// passphrase download over HTTP
	dlReq := httptest.NewRequest("GET", "/api/download/"+resp.ID, nil)
	dlReq.Header.Set("X-Passphrase", "hunter2")
	dlRec := f.do(dlReq)
	require.Equal(t, http.StatusOK, dlRec.Code)
	assert.Equal(t, "document body", dlRec.Body.String())
}

func TestWholeUpload_MissingParts(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType := multipartUpload(t, "secret.doc", "", "", []byte("document body"))
	req = httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "keyB required in server mode")
}

func TestWrongPassphrase_GenericError(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartUpload(t, "secret.doc", "hunter2", "", []byte("document body"))
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp WholeUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	dlReq := httptest.NewRequest("GET", "/api/download/"+resp.ID, nil)
	dlReq.Header.Set("X-Passphrase", "wrong")
	dlRec := f.do(dlReq)
	assert.Equal(t, http.StatusUnauthorized, dlRec.Code)
	assert.Contains(t, dlRec.Body.String(), genericAuthMessage)
}

func TestGatedDownload_Flow(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartUpload(t, "gated.doc", "hunter2", "alice@example.com", []byte("gated body"))
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp WholeUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(httptest.NewRequest("POST", "/api/crypto/request-otp/"+resp.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := f.registry.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	code := stored.OTP
	require.Len(t, code, 6)

	// wrong code: generic 401
	wrong := "999999"
	if code == wrong {
		wrong = "111111"
	}
	rec = f.do(httptest.NewRequest("POST", "/api/crypto/decrypt/"+resp.ID,
		jsonBody(t, DecryptRequest{KeyB: "hunter2", OTP: wrong})))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), genericAuthMessage)

	// correct code and passphrase
	rec = f.do(httptest.NewRequest("POST", "/api/crypto/decrypt/"+resp.ID,
		jsonBody(t, DecryptRequest{KeyB: "hunter2", OTP: code})))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gated body", rec.Body.String())

	// replay: code is consumed
	rec = f.do(httptest.NewRequest("POST", "/api/crypto/decrypt/"+resp.ID,
		jsonBody(t, DecryptRequest{KeyB: "hunter2", OTP: code})))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestOTP_UnknownTransfer(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("POST", "/api/crypto/request-otp/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetadata_Unknown(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/api/metadata/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminLogin(t *testing.T) {
	log := zap.NewNop().Sugar()
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	h := NewAdminLoginHandler("admin", hash, "jwt-secret", log)

	do := func(body io.Reader) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/admin/login", body))
		return rec
	}

	rec := do(jsonBody(t, AdminLoginRequest{Username: "admin", Password: "wrong"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(jsonBody(t, AdminLoginRequest{Username: "eve", Password: "hunter2"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(jsonBody(t, AdminLoginRequest{Username: "admin", Password: "hunter2"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AdminLoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	username, err := auth.VerifyToken(resp.Token, []byte("jwt-secret"))
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
}

func TestAdminLogin_Unconfigured(t *testing.T) {
	h := NewAdminLoginHandler("admin", "", "", zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/admin/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

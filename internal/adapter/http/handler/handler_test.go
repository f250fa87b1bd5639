package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/iho/golend/internal/adapter/http/middleware"
	"github.com/iho/golend/internal/domain"
)

var (
	requester = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	lender    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc      = common.HexToAddress("0x000000000000000000000000000000000000c0de")
)

// serve routes req through a chi router so URL params resolve, as the
// caller would.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request, caller *domain.Caller) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	if caller != nil {
		req = req.WithContext(middleware.WithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return bytes.NewReader(raw)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %s: %v", rec.Body.String(), err)
	}
}

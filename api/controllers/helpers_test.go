package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
)

type routeParam struct {
	key, value string
}

func newRequest(method, target string, body io.Reader, userID string, params ...routeParam) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := req.Context()
	if userID != "" {
		ctx = middleware.WithUserID(ctx, userID)
	}
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for _, p := range params {
			rc.URLParams.Add(p.key, p.value)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return envelope.Error.Code
}

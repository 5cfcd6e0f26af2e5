package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyHandlerTranslatesRequest(t *testing.T) {
	var seen *http.Request
	var seenBody string
	h := proxyHandler{next: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Accept")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false}`))
	})}

	req := events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPost,
		Path:                  "/api/v1/auth/forgot-password/initiate",
		Headers:               map[string]string{"Content-Type": "application/json"},
		QueryStringParameters: map[string]string{"lang": "es"},
		Body:                  base64.StdEncoding.EncodeToString([]byte(`{"subjectIdentifier":"NSS12345678"}`)),
		IsBase64Encoded:       true,
	}
	req.RequestContext.Identity.SourceIP = "203.0.113.7"
	req.RequestContext.RequestID = "req-1"

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/api/v1/auth/forgot-password/initiate", seen.URL.Path)
	assert.Equal(t, "es", seen.URL.Query().Get("lang"))
	assert.Equal(t, "203.0.113.7", seen.RemoteAddr)
	assert.Equal(t, "req-1", seen.Header.Get("X-Request-Id"))
	assert.Equal(t, `{"subjectIdentifier":"NSS12345678"}`, seenBody)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, `{"success":false}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, "Origin,Accept", resp.Headers["Vary"])
	assert.Equal(t, []string{"Origin", "Accept"}, resp.MultiValueHeaders["Vary"])
}

func TestProxyHandlerDropsForwardingHeaders(t *testing.T) {
	var seen *http.Request
	h := proxyHandler{next: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
	})}

	req := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/v1/auth/forgot-password/initiate",
		Headers: map[string]string{
			"X-Forwarded-For": "198.51.100.9, 203.0.113.7",
			"X-Real-IP":       "198.51.100.9",
		},
		MultiValueHeaders: map[string][]string{
			"True-Client-IP": {"198.51.100.10"},
		},
	}
	req.RequestContext.Identity.SourceIP = "203.0.113.7"

	_, err := h.Handle(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "203.0.113.7", seen.RemoteAddr)
	assert.Empty(t, seen.Header.Get("X-Forwarded-For"))
	assert.Empty(t, seen.Header.Get("X-Real-IP"))
	assert.Empty(t, seen.Header.Get("True-Client-IP"))
}

func TestProxyHandlerBadBase64(t *testing.T) {
	h := proxyHandler{next: http.NotFoundHandler()}

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/api/v1/auth/forgot-password/initiate",
		Body:            "%%%",
		IsBase64Encoded: true,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProxyHandlerDefaultStatus(t *testing.T) {
	h := proxyHandler{next: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})}

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/healthz"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", resp.Body)
}

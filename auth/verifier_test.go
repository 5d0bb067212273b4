package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlink/floorlink/errors"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"tok-1": "user-1"})

	userID, err := v.Verify(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = v.Verify(context.Background(), "wrong")
	require.Error(t, err)
	assert.True(t, errors.IsAuthentication(err))
}

func TestStaticVerifierAdd(t *testing.T) {
	v := NewStaticVerifier(nil)
	_, err := v.Verify(context.Background(), "tok-2")
	require.Error(t, err)

	v.Add("tok-2", "user-2")
	userID, err := v.Verify(context.Background(), "tok-2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestHTTPVerifierAccepts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok-1", body.Token)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": "user-1"})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, time.Second)
	userID, err := v.Verify(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestHTTPVerifierRejectsUnauthorized(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		v := NewHTTPVerifier(srv.URL, time.Second)
		_, err := v.Verify(context.Background(), "bad")
		require.Error(t, err)
		assert.True(t, errors.IsAuthentication(err), "status %d classifies as authentication", code)
		srv.Close()
	}
}

func TestHTTPVerifierServerFaultIsInternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, time.Second)
	_, err := v.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, errors.IsAuthentication(err), "verifier faults must not read as bad credentials")
}

func TestHTTPVerifierUnreachableEndpoint(t *testing.T) {
	v := NewHTTPVerifier("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := v.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, errors.IsAuthentication(err))
}

func TestHTTPVerifierHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := v.Verify(ctx, "tok")
	require.Error(t, err)
}

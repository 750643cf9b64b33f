package realtime

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatmux/chatmux/config"
)

func TestEmitterSignsTriggerRequest(t *testing.T) {
	secret := "test-secret"
	var (
		gotPath string
		gotBody []byte
		gotSig  string
		gotQS   string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.URL.Query().Get("auth_signature")
		gotQS = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	e := NewEmitter(config.RealtimeConfig{
		Endpoint: ts.URL,
		AppId:    "42",
		Key:      "app-key",
		Secret:   secret,
	})

	err := e.Trigger("session.s-1", EventCodeIssued, map[string]interface{}{"code": "2@CODE"})
	require.NoError(t, err)

	require.Equal(t, "/apps/42/events", gotPath)
	require.Contains(t, string(gotBody), `"name":"code.issued"`)
	require.Contains(t, string(gotBody), "session.s-1")

	// The signature covers method, path and the query string minus itself.
	canonical := strings.TrimSuffix(gotQS, "&auth_signature="+gotSig)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("POST\n" + gotPath + "\n" + canonical))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSig)

	sum := md5.Sum(gotBody)
	require.Contains(t, canonical, "body_md5="+hex.EncodeToString(sum[:]))
}

func TestEmitterRejectsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	e := NewEmitter(config.RealtimeConfig{Endpoint: ts.URL, AppId: "42", Key: "k", Secret: "s"})
	err := e.Trigger("session.s-1", EventConnected, map[string]interface{}{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestServiceNoopWhenUnconfigured(t *testing.T) {
	svc := NewService(config.DefaultAppConfig, nil)

	var gotEvent string
	var gotPayload interface{}
	require.NoError(t, svc.Bus().Subscribe("session.s-1", func(event string, payload interface{}) {
		gotEvent = event
		gotPayload = payload
	}))

	// No broker configured: the local bus still fans out, nothing panics.
	svc.Trigger("session.s-1", EventConnected, map[string]interface{}{"sid": "s-1"})
	svc.Bus().WaitAsync()
	require.Equal(t, EventConnected, gotEvent)
	require.NotNil(t, gotPayload)
}

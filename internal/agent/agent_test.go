package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/vernacular/internal/fault"
)

func chunkLine(s string) string {
	return fmt.Sprintf(`{"chunk":{"bytes":%q}}`+"\n", base64.StdEncoding.EncodeToString([]byte(s)))
}

func TestCollect(t *testing.T) {
	stream := Stream(func(yield func([]byte, error) bool) {
		for _, s := range []string{"PM ", "Mudra ", "Yojana"} {
			if !yield([]byte(s), nil) {
				return
			}
		}
	})
	out, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "PM Mudra Yojana", out)
}

func TestCollectStopsAtError(t *testing.T) {
	boom := errors.New("boom")
	stream := Stream(func(yield func([]byte, error) bool) {
		if !yield([]byte("partial"), nil) {
			return
		}
		if yield(nil, boom) {
			t.Error("consumer kept reading after an error")
		}
	})
	out, err := Collect(stream)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", out)
}

func TestHTTPAgentInvoke(t *testing.T) {
	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, chunkLine("The MSME "))
		io.WriteString(w, `{"trace":{"step":"retrieval"}}`+"\n")
		io.WriteString(w, "\n")
		io.WriteString(w, chunkLine("subsidy scheme..."))
	}))
	defer srv.Close()

	a, err := NewHTTPAgent(HTTPConfig{Endpoint: srv.URL + "/", APIKey: "k", AgentID: "AG1", AliasID: "AL1"})
	require.NoError(t, err)

	stream, err := a.Invoke(context.Background(), "sess-1", "What is the MSME subsidy scheme?")
	require.NoError(t, err)
	out, err := Collect(stream)
	require.NoError(t, err)

	assert.Equal(t, "The MSME subsidy scheme...", out)
	assert.Equal(t, "/agents/AG1/agentAliases/AL1/sessions/sess-1/text", gotPath)
	assert.Equal(t, "k", gotKey)
	assert.JSONEq(t, `{"inputText":"What is the MSME subsidy scheme?"}`, gotBody)
}

func TestHTTPAgentEmptyStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	a, err := NewHTTPAgent(HTTPConfig{Endpoint: srv.URL, AgentID: "a", AliasID: "b"})
	require.NoError(t, err)
	stream, err := a.Invoke(context.Background(), "s", "q")
	require.NoError(t, err)
	out, err := Collect(stream)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHTTPAgentStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, err := NewHTTPAgent(HTTPConfig{Endpoint: srv.URL, AgentID: "a", AliasID: "b"})
	require.NoError(t, err)
	_, err = a.Invoke(context.Background(), "s", "q")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindTransport))
	assert.Contains(t, err.Error(), "429")
}

func TestHTTPAgentStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chunkLine("half"))
		io.WriteString(w, `{"error":{"message":"dependency failed"}}`+"\n")
	}))
	defer srv.Close()

	a, err := NewHTTPAgent(HTTPConfig{Endpoint: srv.URL, AgentID: "a", AliasID: "b"})
	require.NoError(t, err)
	stream, err := a.Invoke(context.Background(), "s", "q")
	require.NoError(t, err)
	out, err := Collect(stream)
	assert.Equal(t, "half", out)
	assert.True(t, fault.Is(err, fault.KindTransport))
	assert.Contains(t, err.Error(), "dependency failed")
}

func TestNewHTTPAgentRequiresConfig(t *testing.T) {
	_, err := NewHTTPAgent(HTTPConfig{Endpoint: "http://x"})
	assert.True(t, fault.Is(err, fault.KindConfiguration))
}

package remote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientInstantiate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, InstantiatePath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"root":          map[string]any{"ae_result": "retry", "ae_retry_interval": 30},
			"persist_state": map[string]any{"step": "two"},
			"stats":         map[string]float64{"instance_count": 2},
		})
	}))
	defer srv.Close()

	client := New(srv.URL+"/", WithHeader("X-Token", "secret"))
	ws, err := client.Instantiate(t.Context(), "/System/Process/AUTOMATION?a=1", &identity.User{ID: 1, UserID: "admin"}, true)
	require.NoError(t, err)

	assert.Equal(t, "/System/Process/AUTOMATION?a=1", got.URI)
	assert.True(t, got.Readonly)
	assert.Equal(t, "admin", got.User.UserID)

	require.NotNil(t, ws)
	assert.Equal(t, engine.ResultRetry, ws.ResultCode())
	assert.Equal(t, "30", ws.RetryInterval())
	assert.Equal(t, "two", ws.PersistState["step"])
	assert.Equal(t, 2.0, ws.Stats["instance_count"])
}

func TestClientNoContentIsEmptyWorkspace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ws, err := New(srv.URL).Instantiate(t.Context(), "/System/Process/AUTOMATION", &identity.User{ID: 1, UserID: "admin"}, false)
	require.NoError(t, err)
	assert.True(t, ws.Empty())
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method threw", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Instantiate(t.Context(), "/System/Process/AUTOMATION", &identity.User{ID: 1, UserID: "admin"}, false)
	require.Error(t, err)
	assert.True(t, automate.HasCode(err, automate.ErrCodeEngineFailure))
	assert.Contains(t, err.Error(), "method threw")
}

package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

func TestNewPayload(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name  string
		in    Crossing
		wants string
	}{
		{
			name:  "entry",
			in:    Crossing{At: at, Occupancy: 3, Label: ledger.LabelIn},
			wants: `{"timestamp":"2024-03-01T09:00:00.000Z","current_count":3,"direction":"IN"}`,
		},
		{
			name:  "status only",
			in:    Crossing{At: at, Occupancy: 0},
			wants: `{"timestamp":"2024-03-01T09:00:00.000Z","current_count":0,"direction":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(NewPayload(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.wants, string(b))
		})
	}
}

func TestRemoteSync_Push(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rs, err := NewRemoteSync(srv.URL, time.Second)
	require.NoError(t, err)
	require.NoError(t, rs.Push(context.Background(), Crossing{At: time.Now(), Occupancy: 4, Label: ledger.LabelOut}))

	assert.Equal(t, 4, got.CurrentCount)
	require.NotNil(t, got.Direction)
	assert.Equal(t, "OUT", *got.Direction)
}

func TestRemoteSync_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	rs, err := NewRemoteSync(srv.URL, time.Second)
	require.NoError(t, err)

	err = rs.Push(context.Background(), Crossing{At: time.Now()})
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Equal(t, "bad payload", re.Body)
}

func TestRemoteSync_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rs, err := NewRemoteSync(srv.URL, 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	require.Error(t, rs.Push(context.Background(), Crossing{At: time.Now()}))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewRemoteSync_Validation(t *testing.T) {
	_, err := NewRemoteSync("", time.Second)
	require.Error(t, err)

	rs, err := NewRemoteSync("http://example.invalid", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRemoteTimeout, rs.client.Timeout)
}

package analytics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primebarber/site-backend/config"
)

func TestTrackPurchase(t *testing.T) {
	var path string
	var sent eventBatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &sent)
		_, _ = w.Write([]byte(`{"events_received":1}`))
	}))
	defer srv.Close()

	m := NewMeta(config.AnalyticsConfig{
		PixelID: "px1", AccessToken: "tok", BaseURL: srv.URL, SourceURL: "https://www.aibarber.org/",
	})
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := m.TrackPurchase(context.Background(), Purchase{
		CustomerEmail: "  Joe@Example.COM ",
		ClientIP:      "203.0.113.9, 10.0.0.1",
		UserAgent:     "ua",
	})
	require.NoError(t, err)

	assert.Equal(t, "/px1/events", path)
	assert.Equal(t, "tok", sent.AccessToken)
	require.Len(t, sent.Data, 1)
	ev := sent.Data[0]
	assert.Equal(t, "Purchase", ev.Name)
	assert.Equal(t, int64(1700000000), ev.Time)
	assert.Equal(t, "purchase_1700000000000", ev.ID)
	assert.Equal(t, "website", ev.ActionSource)
	assert.Equal(t, "https://www.aibarber.org/", ev.SourceURL)
	assert.Equal(t, []string{HashEmail("joe@example.com")}, ev.UserData.Email)
	assert.Equal(t, "203.0.113.9", ev.UserData.ClientIP)
	assert.Equal(t, customData{Currency: "USD", Value: 10}, ev.CustomData)
}

func TestTrackPurchase_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter"}}`))
	}))
	defer srv.Close()

	m := NewMeta(config.AnalyticsConfig{PixelID: "px1", AccessToken: "tok", BaseURL: srv.URL})
	err := m.TrackPurchase(context.Background(), Purchase{EventID: "e1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid parameter")
}

func TestTrackPurchase_Unconfigured(t *testing.T) {
	m := NewMeta(config.AnalyticsConfig{BaseURL: "http://127.0.0.1:1"})
	assert.NoError(t, m.TrackPurchase(context.Background(), Purchase{EventID: "e1"}))
}

func TestHashEmail(t *testing.T) {
	assert.Equal(t, "973dfe463ec85785f5f95af5ba3906eedb2d931c24e69824a89ea65dba4e813b", HashEmail("Test@Example.com"))
}

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlfolio/backend/pkg/errs"
)

func TestNotifyScrapeCompleteDeliversSignedPayload(t *testing.T) {
	var gotAuth string
	var gotReport ScrapeReport

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReport))
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "s3cret")
	err := c.NotifyScrapeComplete(context.Background(), ScrapeReport{
		JobID:       "scrape_1",
		Source:      "arxiv",
		TotalPapers: 2,
		Timestamp:   time.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "scrape_1", gotReport.JobID)
	assert.Equal(t, 2, gotReport.TotalPapers)
}

func TestPostRejectedSecretFailsWithoutRetry(t *testing.T) {
	var calls int32

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "wrong")
	err := c.NotifyDocumentProcessed(context.Background(), ProcessReport{JobID: "proc_1"})

	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "auth failures must not be retried")
}

func TestPostSkipsDeliveryWithoutBaseURL(t *testing.T) {
	c := NewClient("", "s3cret")
	assert.NoError(t, c.NotifyScrapeComplete(context.Background(), ScrapeReport{JobID: "scrape_1"}))
}

package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsmErrorKind_Tolerant(t *testing.T) {
	tolerant := []FsmErrorKind{NoTransitionMatched, TooManyTransitionsMatched}
	fatal := []FsmErrorKind{NoApplicableTransition, TransitionExecutionError, StoreFetchError, StoreSaveError, ItemNotFound}

	for _, k := range tolerant {
		assert.True(t, k.Tolerant(), k)
	}
	for _, k := range fatal {
		assert.False(t, k.Tolerant(), k)
	}
}

func TestParseFsmErrorKind(t *testing.T) {
	k, err := ParseFsmErrorKind("TooManyTransitionsMatched")
	require.NoError(t, err)
	assert.Equal(t, TooManyTransitionsMatched, k)

	_, err = ParseFsmErrorKind("Whatever")
	assert.Error(t, err)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 0)
}

func TestClient_Fetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/s1":
			io.WriteString(w, `{"id":"s1","state":"submitted"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	item, found, err := c.Fetch(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "submitted", item.State)
	assert.False(t, item.Deleted())

	_, found, err = c.Fetch(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClient_Apply(t *testing.T) {
	var got RejectData
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/services/s1/actions/reject", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"id":"s1","state":"rejected"}`)
	})

	item, err := c.Apply(context.Background(), ActionReject, "s1", RejectData{Reason: "bad email"})
	require.NoError(t, err)
	assert.Equal(t, StateRejected, item.State)
	assert.Equal(t, "bad email", got.Reason)
}

func TestClient_ApplyFsmError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"kind":"NoTransitionMatched","message":"already approved"}`)
	})

	_, err := c.Apply(context.Background(), ActionApprove, "s1", ApproveData{ApprovalDate: "2023-05-12"})
	var ferr *FsmError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, NoTransitionMatched, ferr.Kind)
	assert.True(t, ferr.Kind.Tolerant())
}

func TestClient_Override(t *testing.T) {
	var got Item
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(got)
	})

	saved, err := c.Override(context.Background(), "s1", Item{ID: "s1", State: StateApproved})
	require.NoError(t, err)
	assert.Equal(t, StateApproved, saved.State)
	assert.Equal(t, "s1", got.ID)
}

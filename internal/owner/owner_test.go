package owner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDelegateFromServiceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/s1/delegate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"first_name":"Mario","last_name":"Rossi","email":"mario@comune.it","permissions":["ApiServiceWrite"]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	d, err := c.GetDelegateFromServiceID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Mario Rossi", d.FullName())
	assert.Equal(t, []string{"ApiServiceWrite"}, d.Permissions)

	_, err = c.GetDelegateFromServiceID(context.Background(), "s2")
	assert.Error(t, err)
}

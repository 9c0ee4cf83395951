package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowList_Static(t *testing.T) {
	list := NewAllowList([]string{"test_user_01", " charo_special_id ", ""}, "")

	assert.True(t, list.Contains("test_user_01"))
	assert.True(t, list.Contains(" charo_special_id"))
	assert.False(t, list.Contains("intruder"))
	assert.False(t, list.Contains(""))
	assert.Equal(t, 2, list.Size())
	assert.NoError(t, list.Refresh(context.Background()))
}

func TestAllowList_RemoteRefresh(t *testing.T) {
	body := "purchaser_id,purchased_at\nbuyer_a,2024-01-01\n buyer_b ,2024-01-02\n,\ntest_user_01\n"
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	defer server.Close()

	list := NewAllowList([]string{"test_user_01"}, server.URL)
	assert.False(t, list.Contains("buyer_a"))

	require.NoError(t, list.Refresh(context.Background()))
	assert.True(t, list.Contains("buyer_a"))
	assert.True(t, list.Contains("buyer_b"))
	assert.False(t, list.Contains("purchaser_id"))
	assert.Equal(t, 3, list.Size())
	assert.False(t, list.LastRefresh().IsZero())

	// failures keep the previous remote set
	status = http.StatusInternalServerError
	assert.Error(t, list.Refresh(context.Background()))
	assert.True(t, list.Contains("buyer_a"))
}

func TestParseCSV_NoHeader(t *testing.T) {
	ids, err := parseCSV(strings.NewReader("buyer_x\nbuyer_y,extra,columns\n"))
	require.NoError(t, err)

	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "buyer_x")
}


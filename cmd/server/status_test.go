package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/aprilvoice"
	"github.com/agnivade/aprilvoice/providers/accounts"
	"github.com/agnivade/aprilvoice/providers/mock"
)

func TestFetchStatus_Local(t *testing.T) {
	server := aprilvoice.New(mock.NewProvider(0, nil), aprilvoice.WithMode(aprilvoice.ModeMock))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	st, err := fetchStatus(ts.Client(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "mock", st.Mode)

	var buf bytes.Buffer
	renderStatus(&buf, st)
	assert.Contains(t, buf.String(), "Mode: mock")
}

func TestFetchStatus_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := fetchStatus(ts.Client(), ts.URL)
	assert.Error(t, err)
}

func TestRenderStatus_Cloud(t *testing.T) {
	st := cloudStatus{
		Mode:            "cloud",
		CurrentProvider: "azure",
		Providers: map[string]accounts.Status{
			"azure": {
				TotalAccounts: 2,
				CurrentIndex:  1,
				Accounts: []accounts.AccountStatus{
					{Name: "key1", Used: 300, Limit: 300, Enabled: true},
					{Name: "key2", Used: 12.25, Limit: 300, Enabled: true},
				},
			},
			"gemini": {
				TotalAccounts: 1,
				Accounts:      []accounts.AccountStatus{{Name: "g1", Enabled: false}},
			},
		},
	}

	var buf bytes.Buffer
	renderStatus(&buf, st)
	out := buf.String()

	assert.Contains(t, out, "current provider: azure")
	assert.Contains(t, out, "key2")
	assert.Contains(t, out, "12.25")
	assert.Contains(t, out, "unlimited")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("azure")), bytes.Index(buf.Bytes(), []byte("gemini")))
}

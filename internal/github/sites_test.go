package github

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDeployedSites(t *testing.T) {
	older := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/xiyo/repos":
			_ = json.NewEncoder(w).Encode([]Repo{
				{Name: "replica-builder", CreatedAt: newer},
				{Name: "replica-template-00-20250801000000", CreatedAt: older, HTMLURL: "https://github.com/xiyo/a"},
				{Name: "replica-template-01-20250815000000", CreatedAt: newer, HTMLURL: "https://github.com/xiyo/b"},
				{Name: "replica-template-9-2025", CreatedAt: newer}, // wrong pattern
			})
		case "/repos/xiyo/replica-template-00-20250801000000/actions/variables":
			_ = json.NewEncoder(w).Encode(variablesResponse{Variables: []actionsVariable{
				{Name: "OTHER", Value: "x"},
				{Name: "SITE_SUBDOMAIN", Value: "alpha"},
			}})
		case "/repos/xiyo/replica-template-01-20250815000000/actions/variables":
			_ = json.NewEncoder(w).Encode(variablesResponse{Variables: []actionsVariable{
				{Name: "SITE_SUBDOMAIN", Value: "beta"},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	sites, err := client.ListDeployedSites(context.Background(), "xiyo.dev")
	require.NoError(t, err)
	require.Len(t, sites, 2)

	// Newest first
	assert.Equal(t, "beta", sites[0].Subdomain)
	assert.Equal(t, "https://beta.xiyo.dev", sites[0].URL)
	assert.Equal(t, "template-01", sites[0].Template)
	assert.Equal(t, "alpha", sites[1].Subdomain)
	assert.Equal(t, "template-00", sites[1].Template)
}

func TestListDeployedSitesSkipsFailingRepos(t *testing.T) {
	created := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/xiyo/repos":
			_ = json.NewEncoder(w).Encode([]Repo{
				{Name: "replica-template-00-20250801000000", CreatedAt: created},
				{Name: "replica-template-01-20250801000001", CreatedAt: created},
			})
		case "/repos/xiyo/replica-template-00-20250801000000/actions/variables":
			w.WriteHeader(http.StatusForbidden)
		case "/repos/xiyo/replica-template-01-20250801000001/actions/variables":
			_ = json.NewEncoder(w).Encode(variablesResponse{Variables: []actionsVariable{
				{Name: "SITE_SUBDOMAIN", Value: "gamma"},
			}})
		}
	}))

	sites, err := client.ListDeployedSites(context.Background(), "xiyo.dev")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "gamma", sites[0].Subdomain)
}

func TestListDeployedSitesListingFailure(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListDeployedSites(context.Background(), "xiyo.dev")
	assert.Error(t, err)
}

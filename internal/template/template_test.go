package template

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByID(t *testing.T) {
	t.Run("known template", func(t *testing.T) {
		tmpl := ByID("replica-template-01")
		require.NotNil(t, tmpl)
		assert.Equal(t, "VitePress", tmpl.Name)
		assert.Equal(t, "Vue", tmpl.Framework)
	})

	t.Run("unknown template", func(t *testing.T) {
		assert.Nil(t, ByID("replica-template-99"))
	})
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 3)

	// Callers must not be able to mutate the registry
	all[0].Name = "mutated"
	assert.Equal(t, "Starlight", ByID("replica-template-00").Name)
}

func TestFetchSchema(t *testing.T) {
	t.Run("parses fields", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`
fields:
  - name: title
    type: text
    label: Site title
    required: true
    placeholder: My Docs
  - name: theme
    type: select
    label: Theme
    default: light
    options:
      - value: light
        label: Light
      - value: dark
        label: Dark
    validation:
      pattern: "^(light|dark)$"
      message: pick light or dark
`))
		}))
		defer srv.Close()

		fields, err := FetchSchema(context.Background(), &Template{SchemaURL: srv.URL})
		require.NoError(t, err)
		require.Len(t, fields, 2)

		assert.Equal(t, "title", fields[0].Name)
		assert.True(t, fields[0].Required)
		assert.Equal(t, "light", fields[1].Default)
		require.Len(t, fields[1].Options, 2)
		require.NotNil(t, fields[1].Validation)
		assert.Equal(t, "^(light|dark)$", fields[1].Validation.Pattern)
	})

	t.Run("empty schema yields empty fields", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{}"))
		}))
		defer srv.Close()

		fields, err := FetchSchema(context.Background(), &Template{SchemaURL: srv.URL})
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("non-success status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := FetchSchema(context.Background(), &Template{SchemaURL: srv.URL})
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("fields: [unclosed"))
		}))
		defer srv.Close()

		_, err := FetchSchema(context.Background(), &Template{SchemaURL: srv.URL})
		assert.Error(t, err)
	})
}

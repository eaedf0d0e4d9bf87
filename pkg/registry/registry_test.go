package registry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dependency-impact-checker/pkg/registry"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("should normalize the repository URL and pick the latest dist-tag", func(t *testing.T) {
		t.Parallel()

		// given
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/lodash", r.URL.Path)
			_, _ = io.WriteString(w, `{
				"repository": {"type": "git", "url": "git+https://github.com/lodash/lodash.git"},
				"dist-tags": {"latest": "4.17.21"}
			}`)
		}))
		t.Cleanup(srv.Close)

		// when
		info, err := registry.NewClient(srv.URL).Lookup("lodash")

		// then
		require.NoError(t, err)
		assert.Equal(t, "lodash", info.Name)
		assert.Equal(t, "github.com/lodash/lodash", info.SourceRepo)
		assert.Equal(t, "4.17.21", info.LatestVersion)
	})

	t.Run("should error on a non-success status", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		_, err := registry.NewClient(srv.URL).Lookup("no-such-package")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

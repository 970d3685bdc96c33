package testing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/goyp/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passwdFile = `# local users
root:*:0:0:Charlie &:/root:/bin/sh
alice:*:1000:1000:Alice:/home/alice:/bin/sh

bob:*:1001:1001:Bob:/home/bob:/bin/csh
`

// TestLoad verifies loading colon-separated and key/value map files.
func (suite *StoreTestSuite) TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("PasswdByName", func(t *testing.T) {
		st := suite.newStore(t)

		n, err := store.Load(ctx, st, "example.com", "passwd.byname", strings.NewReader(passwdFile))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		v, err := st.Get(ctx, "example.com", "passwd.byname", []byte("alice"))
		require.NoError(t, err)
		assert.Equal(t, "alice:*:1000:1000:Alice:/home/alice:/bin/sh", string(v))
	})

	t.Run("PasswdByUID", func(t *testing.T) {
		st := suite.newStore(t)

		_, err := store.Load(ctx, st, "example.com", "passwd.byuid", strings.NewReader(passwdFile))
		require.NoError(t, err)

		v, err := st.Get(ctx, "example.com", "passwd.byuid", []byte("1001"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(v), "bob:"))
	})

	t.Run("KeyValue", func(t *testing.T) {
		st := suite.newStore(t)

		_, err := store.Load(ctx, st, "example.com", "hosts.byname",
			strings.NewReader("gw\t10.0.0.1   gw gateway\nlonely\n"))
		require.NoError(t, err)

		v, err := st.Get(ctx, "example.com", "hosts.byname", []byte("gw"))
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1   gw gateway", string(v))

		v, err = st.Get(ctx, "example.com", "hosts.byname", []byte("lonely"))
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("RejectsMissingKeyField", func(t *testing.T) {
		st := suite.newStore(t)

		_, err := store.Load(ctx, st, "example.com", "passwd.byuid", strings.NewReader("alice:*\n"))
		assert.ErrorContains(t, err, "line 1")
	})

	t.Run("Dir", func(t *testing.T) {
		st := suite.newStore(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "passwd.byname"), []byte(passwdFile), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "netgroup"), []byte("staff (,alice,)\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x y\n"), 0o644))

		n, err := store.LoadDir(ctx, st, "example.com", dir)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		maps, err := st.Maps(ctx, "example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"netgroup", "passwd.byname"}, maps)
	})
}

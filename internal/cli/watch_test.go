package cli

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlab/driftwatch/internal/config"
)

func TestResolveDBPath(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = "from-config.db"

	newFlagSet := func() (*pflag.FlagSet, *string) {
		fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		db := fs.String("db", "", "")
		return fs, db
	}

	// No flag set: the config file's storage.path applies.
	fs, db := newFlagSet()
	assert.Equal(t, "from-config.db", resolveDBPath(fs, *db, cfg))

	// Explicit flag wins over the file.
	fs, db = newFlagSet()
	require.NoError(t, fs.Parse([]string{"--db", "from-flag.db"}))
	assert.Equal(t, "from-flag.db", resolveDBPath(fs, *db, cfg))

	// An explicitly empty flag disables persistence despite the file.
	fs, db = newFlagSet()
	require.NoError(t, fs.Parse([]string{"--db", ""}))
	assert.Equal(t, "", resolveDBPath(fs, *db, cfg))

	// Neither flag nor file: persistence stays off.
	fs, db = newFlagSet()
	assert.Equal(t, "", resolveDBPath(fs, *db, config.Default()))
}

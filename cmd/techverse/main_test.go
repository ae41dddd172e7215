package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techverse/marketplace/internal/config"
	"techverse/marketplace/internal/store"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "create-admin", "seed"})
}

func TestLoadSeed(t *testing.T) {
	data, err := loadSeed("")
	require.NoError(t, err)
	assert.NotEmpty(t, data.Categories)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - name: Drones\n"), 0o600))
	data, err = loadSeed(path)
	require.NoError(t, err)
	require.Len(t, data.Categories, 1)
	assert.Equal(t, "Drones", data.Categories[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("colour: red\n"), 0o600))
	_, err = loadSeed(path)
	assert.Error(t, err)
}

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	cfg := config.Config{}
	st, err := openStore(context.Background(), cfg, zerolog.Nop(), true)
	require.NoError(t, err)
	assert.Equal(t, store.ModeMemory, st.Mode())

	_, err = openStore(context.Background(), cfg, zerolog.Nop(), false)
	assert.ErrorIs(t, err, errNoDatabase)
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Flags(t *testing.T) {
	cmd := rootCmd()
	for _, name := range []string{"database-url", "dry-run", "strict", "verbose"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRootCmd_DryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coupons.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"code":"A","discountType":"FLAT","discountValue":5}`+"\n"+
			`{"code":"A","discountType":"FLAT","discountValue":6}`+"\n",
	), 0o600))

	cmd := rootCmd()
	cmd.SetArgs([]string{"--dry-run", path})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}

func TestRootCmd_Errors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "coupons.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"code":"A"}`+"\n"), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no files", args: []string{"--dry-run"}, wantErr: "requires at least 1 arg"},
		{name: "no database", args: []string{path}, wantErr: "database URL is required"},
		{name: "missing file", args: []string{"--dry-run", path + ".missing"}, wantErr: "read files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetArgs(tt.args)
			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/app"
	dErrors "confirmit/pkg/domain-errors"
)

const memoryConfig = `
log_level: error
reputation:
  oracle_url: "http://oracle.invalid"
analysis:
  base_url: "http://vision.invalid"
business:
  sealing_key: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "confirmit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(memoryConfig), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIRMIT_CONFIG", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--config", writeConfig(t)))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "status"},
		{"anchor", "verify"},
		{"business", "approve"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"anchor verify needs a ref", []string{"anchor", "verify"}},
		{"business approve takes one id", []string{"business", "approve", "BIZ-1", "BIZ-2"}},
		{"migrate up takes none", []string{"migrate", "up", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	for _, sub := range []string{"up", "status"} {
		t.Run(sub, func(t *testing.T) {
			_, err := execute(t, "migrate", sub)
			require.ErrorIs(t, err, app.ErrNoDatabase)
		})
	}
}

func TestBusinessApprove(t *testing.T) {
	t.Run("malformed id", func(t *testing.T) {
		_, err := execute(t, "business", "approve", "not-a-business")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown business", func(t *testing.T) {
		_, err := execute(t, "business", "approve", "BIZ-0000000000000000")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestAnchorVerifyUnknownRef(t *testing.T) {
	out, err := execute(t, "anchor", "verify", "memory/0/42")
	require.NoError(t, err)

	var resp struct {
		TransactionID string `json:"transaction_id"`
		Verified      bool   `json:"verified"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "memory/0/42", resp.TransactionID)
	assert.False(t, resp.Verified)
}


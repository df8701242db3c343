package assets

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/pkg/platform/sentinel"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		wantExt string
	}{
		{"keeps extension", "receipt.PNG", ".png"},
		{"drops directories", "../../etc/receipt.jpg", ".jpg"},
		{"windows path", `C:\Users\ada\scan.pdf`, ".pdf"},
		{"no extension", "receipt", ""},
		{"suspicious extension", "receipt.p?ng", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ObjectKey(tt.in, now)
			assert.True(t, strings.HasPrefix(key, "receipts/2025/03/09/"), key)
			assert.True(t, strings.HasSuffix(key, tt.wantExt), key)
			assert.NotContains(t, key, "..")
		})
	}

	assert.NotEqual(t, ObjectKey("a.png", now), ObjectKey("a.png", now))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("%PNG fake")
	ref, err := s.Upload(ctx, "r.png", "image/png", data)
	require.NoError(t, err)
	assert.Equal(t, "memory://"+ref.AssetID, ref.URL)

	data[0] = 'X'
	got, ct, err := s.Get(ref.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "%PNG fake", string(got))
	assert.Equal(t, "image/png", ct)

	ref, err = s.Upload(ctx, "blob", "", []byte{1})
	require.NoError(t, err)
	_, ct, err = s.Get(ref.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", ct)

	_, _, err = s.Get("receipts/missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Upload(cancelled, "r.png", "image/png", data)
	assert.ErrorIs(t, err, context.Canceled)
}

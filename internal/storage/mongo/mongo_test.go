//go:build integration

package mongo

import (
	"context"
	"os"
	"testing"

	"finease/internal/storage"
	"finease/internal/storage/storagetest"

	"github.com/stretchr/testify/require"
)

// Run with: MONGO_URI=mongodb://localhost:27017 go test -tags integration ./internal/storage/mongo
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := Open(ctx, uri, "fin_db_test", DefaultCollection)
		require.NoError(t, err)
		_, err = s.coll.DeleteMany(ctx, map[string]any{})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

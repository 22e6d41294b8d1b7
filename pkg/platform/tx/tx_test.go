package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("nil tx leaves context untouched", func(t *testing.T) {
		got := WithTx(ctx, nil)
		_, ok := From(got)
		assert.False(t, ok)
	})

	t.Run("stored tx is returned", func(t *testing.T) {
		sqlTx := &sql.Tx{}
		got, ok := From(WithTx(ctx, sqlTx))
		assert.True(t, ok)
		assert.Same(t, sqlTx, got)
		assert.Same(t, sqlTx, Exec(WithTx(ctx, sqlTx), nil))
	})

	t.Run("falls back to db without tx", func(t *testing.T) {
		db := &sql.DB{}
		assert.Same(t, db, Exec(ctx, db))
	})
}

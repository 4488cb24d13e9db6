package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"credregistry/internal/sentinel"
)

func TestStoreErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "bad connection", err: driver.ErrBadConn, unavailable: true},
		{name: "closed connection", err: sql.ErrConnDone, unavailable: true},
		{name: "query error", err: errors.New("syntax error at or near"), unavailable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeErr("find credential", tt.err)

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, sentinel.ErrUnavailable))
			assert.Contains(t, err.Error(), "find credential")
		})
	}
}

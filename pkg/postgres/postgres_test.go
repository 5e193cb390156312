package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestNewFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db, err := New(ctx, Config{
		DSN:          "host=127.0.0.1 port=1 user=u password=p dbname=analytics sslmode=disable connect_timeout=1",
		MaxOpenConns: 1,
	}, zaptest.NewLogger(t))
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "could not ping postgres")
}

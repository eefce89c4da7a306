package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	id, err := PublishJSONToStream(ctx, client, "agrismart:events", 0, "alert.new", at, map[string]string{"id": "a-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "agrismart:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alert.new", msgs[0].Values["type"])
	assert.JSONEq(t, `{"id":"a-1"}`, msgs[0].Values["data"].(string))
	assert.Equal(t, strconv.FormatInt(at.Unix(), 10), msgs[0].Values["timestamp"])
}

func TestPublishToStream_Scalars(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"n":  3,
		"f":  27.5,
		"ok": true,
		"v":  []string{"x"},
	})
	require.NoError(t, err)

	msgs, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "3", msgs[0].Values["n"])
	assert.Equal(t, "27.5", msgs[0].Values["f"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
	assert.Equal(t, `["x"]`, msgs[0].Values["v"])
}

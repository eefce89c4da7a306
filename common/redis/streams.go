package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// streamField renders v as a stream field value. Strings, bytes, integers,
// floats and bools are written as text; anything else as JSON.
func streamField(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PublishToStream appends fields to stream and returns the entry id.
// maxLen > 0 caps the stream approximately.
func PublishToStream(ctx context.Context, client *redis.Client, stream string, maxLen int64, fields map[string]interface{}) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, err := streamField(v)
		if err != nil {
			return "", err
		}
		values[k] = s
	}

	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLenApprox = maxLen
	}
	return client.XAdd(ctx, args).Result()
}

// PublishJSONToStream writes an entry with fields type, data (JSON) and
// timestamp (unix seconds of at).
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, maxLen int64, eventType string, at time.Time, data interface{}) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return PublishToStream(ctx, client, stream, maxLen, map[string]interface{}{
		"type":      eventType,
		"data":      payload,
		"timestamp": at.Unix(),
	})
}

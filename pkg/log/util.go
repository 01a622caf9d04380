package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// badKey names a value whose key was missing or not a string.
const badKey = "!BADKEY"

// toFields turns logr-style key/value pairs into zap fields. A zap.Field or a
// bare error may appear in place of a pair. zap.Any picks the typed encoder
// for the common scalar types.
func toFields(kvs []any) []zap.Field {
	if len(kvs) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, (len(kvs)+1)/2)
	for len(kvs) > 0 {
		switch v := kvs[0].(type) {
		case zap.Field:
			fields = append(fields, v)
			kvs = kvs[1:]
			continue
		case error:
			fields = append(fields, zap.Error(v))
			kvs = kvs[1:]
			continue
		}

		if len(kvs) == 1 {
			fields = append(fields, zap.Any(badKey, kvs[0]))
			break
		}

		key, ok := kvs[0].(string)
		if !ok {
			key = fmt.Sprintf("%s(%v)", badKey, kvs[0])
		}
		fields = append(fields, field(key, kvs[1]))
		kvs = kvs[2:]
	}
	return fields
}

func field(key string, v any) zap.Field {
	switch v := v.(type) {
	case time.Duration, time.Time:
		return zap.Any(key, v)
	case error:
		return zap.NamedError(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}

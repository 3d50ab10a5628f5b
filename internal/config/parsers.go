// Package config provides configuration loading and parsing for pinba.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// asString converts an interface value to a string.
func asString(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	return cast.ToStringE(value)
}

// asInt converts an interface value to an int. Blank strings are zero.
func asInt(value interface{}) (int, error) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
		if value == "" {
			return 0, nil
		}
	}
	if value == nil {
		return 0, nil
	}
	return cast.ToIntE(value)
}

// asBool converts an interface value to a bool. Blank strings are false.
func asBool(value interface{}) (bool, error) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
		if value == "" {
			return false, nil
		}
	}
	if value == nil {
		return false, nil
	}
	return cast.ToBoolE(value)
}

// asDuration converts an interface value to a time.Duration.
// Strings are parsed with time.ParseDuration; plain numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

// asStringSlice converts an interface value to a []string. A single string
// is split on commas, the way server lists arrive from the environment.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		items, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported string slice type %T", value)
		}
		return items, nil
	}
}

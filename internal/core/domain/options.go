package domain

import (
	"fmt"
	"time"
)

// Options are the kind-specific keys of a job table, as decoded from TOML.
type Options map[string]any

// Common job option keys.
const (
	OptIndex       = "index"
	OptOverwrite   = "overwrite"
	OptCache       = "cache"
	OptMaxAge      = "max-age"
	OptEvict       = "evict"
	OptConcurrency = "concurrency"
	OptRetries     = "retries"
	OptTimeout     = "timeout"
)

func (o Options) typeError(key, want string) error {
	return fmt.Errorf("%w: option `%s` must be %s, got %T", ErrInvalidInput, key, want, o[key])
}

// String retrieves a string option.
func (o Options) String(key string) (string, bool, error) {
	v, ok := o[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, o.typeError(key, "a string")
	}
	return s, true, nil
}

// Bool retrieves a boolean option.
func (o Options) Bool(key string) (bool, bool, error) {
	v, ok := o[key]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, o.typeError(key, "a boolean")
	}
	return b, true, nil
}

// Int retrieves an integer option.
func (o Options) Int(key string) (int, bool, error) {
	v, ok := o[key]
	if !ok {
		return 0, false, nil
	}
	// TOML integers are decoded as int64
	switch n := v.(type) {
	case int64:
		return int(n), true, nil
	case int:
		return n, true, nil
	default:
		return 0, false, o.typeError(key, "an integer")
	}
}

// Float retrieves a numeric option.
func (o Options) Float(key string) (float64, bool, error) {
	v, ok := o[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int64:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	default:
		return 0, false, o.typeError(key, "a number")
	}
}

// Duration retrieves a duration option written as a Go duration string ("30s").
func (o Options) Duration(key string) (time.Duration, bool, error) {
	s, ok, err := o.String(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("%w: option `%s`: %v", ErrInvalidInput, key, err)
	}
	return d, true, nil
}

// StringSlice retrieves an option given as a string or an array of strings.
func (o Options) StringSlice(key string) ([]string, bool, error) {
	v, ok := o[key]
	if !ok {
		return nil, false, nil
	}
	// TOML arrays are decoded as []any
	switch s := v.(type) {
	case string:
		return []string{s}, true, nil
	case []string:
		return s, true, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false, o.typeError(key, "a string or array of strings")
			}
			out = append(out, str)
		}
		return out, true, nil
	default:
		return nil, false, o.typeError(key, "a string or array of strings")
	}
}

// Index resolves the `index` option: true or missing selects defaultName,
// false disables the index, a string names the file.
func (o Options) Index(defaultName string) (string, error) {
	v, ok := o[OptIndex]
	if !ok {
		return defaultName, nil
	}
	switch idx := v.(type) {
	case bool:
		if idx {
			return defaultName, nil
		}
		return "", nil
	case string:
		if idx == "" {
			return "", fmt.Errorf("%w: option `index` must not be empty", ErrInvalidInput)
		}
		return idx, nil
	default:
		return "", o.typeError(OptIndex, "a boolean or string")
	}
}

// RunOptions applies the common job options on top of base.
func (o Options) RunOptions(base RunOptions) (RunOptions, error) {
	out := base
	if n, ok, err := o.Int(OptConcurrency); err != nil {
		return out, err
	} else if ok {
		out.Concurrency = n
	}
	if n, ok, err := o.Int(OptRetries); err != nil {
		return out, err
	} else if ok {
		out.Retries = n
	}
	if d, ok, err := o.Duration(OptTimeout); err != nil {
		return out, err
	} else if ok {
		out.Timeout = d
	}
	if d, ok, err := o.Duration(OptMaxAge); err != nil {
		return out, err
	} else if ok {
		out.MaxAge = d
	}
	if s, ok, err := o.String(OptCache); err != nil {
		return out, err
	} else if ok {
		p, err := ParseCachePolicy(s)
		if err != nil {
			return out, err
		}
		out.Cache = p
	}
	// overwrite is the older spelling of cache = "refresh"
	if b, ok, err := o.Bool(OptOverwrite); err != nil {
		return out, err
	} else if ok && b {
		out.Cache = CacheRefresh
	}
	if b, ok, err := o.Bool(OptEvict); err != nil {
		return out, err
	} else if ok {
		out.Evict = b
	}
	return out, nil
}

// RunOverrides are per-invocation settings that take precedence over job options.
type RunOverrides struct {
	Concurrency *int
	Retries     *int
	Timeout     *time.Duration
	Cache       *CachePolicy
}

// Apply returns o with every set override applied.
func (r RunOverrides) Apply(o RunOptions) RunOptions {
	if r.Concurrency != nil {
		o.Concurrency = *r.Concurrency
	}
	if r.Retries != nil {
		o.Retries = *r.Retries
	}
	if r.Timeout != nil {
		o.Timeout = *r.Timeout
	}
	if r.Cache != nil {
		o.Cache = *r.Cache
	}
	return o
}

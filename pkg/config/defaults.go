package config

import (
	"fmt"
	"reflect"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/v2"
)

// WithDefaults returns a koanf.Provider that serves the non-zero fields of
// a struct under their koanf tag names. Nested structs become nested keys.
//
//	k.Load(config.WithDefaults(config.Default()), nil)
func WithDefaults[T any](defaults T) koanf.Provider {
	return defaultsProvider[T]{defaults: defaults}
}

type defaultsProvider[T any] struct {
	defaults T
}

func (p defaultsProvider[T]) Read() (map[string]any, error) {
	flat := make(map[string]any)
	if err := flatten(reflect.ValueOf(p.defaults), "", flat); err != nil {
		return nil, err
	}
	return maps.Unflatten(flat, "."), nil
}

func (p defaultsProvider[T]) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: defaults provider does not support ReadBytes")
}

// flatten writes the koanf-tagged fields of v into out as dotted keys.
func flatten(v reflect.Value, prefix string, out map[string]any) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("%w: got %s", ErrDefaultsNotStruct, v.Kind())
	}

	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}

		fv := v.Field(i)
		if fv.IsZero() || (fv.Kind() == reflect.Slice && fv.Len() == 0) {
			continue
		}

		key := prefix + tag
		if leaf(fv) {
			out[key] = fv.Interface()
			continue
		}
		if err := flatten(fv, key+".", out); err != nil {
			return err
		}
	}
	return nil
}

// leaf reports whether v is stored as one value rather than walked.
// time.Duration and time.Time count as values.
func leaf(v reflect.Value) bool {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.Kind() != reflect.Struct || v.Type().PkgPath() == "time"
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
)

var (
	ErrInvalidJSON     = errors.New("invalid JSON body")
	ErrInvalidParam    = errors.New("invalid request parameter")
	ErrUnsupportedType = errors.New("unsupported field type for binding")
)

// Bind fills v from the request.
type Bind func(r *http.Request, v any) error

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// BindJSON decodes a strict JSON body. Unknown fields and trailing data are rejected.
func BindJSON() Bind {
	return func(r *http.Request, v any) error {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			if mt, _, _ := mime.ParseMediaType(ct); mt != "application/json" {
				return ErrUnsupportedMedia
			}
		}
		dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			}
			return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		if dec.More() {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}
		return nil
	}
}

// BindPath fills fields tagged `path:"name"` from chi URL parameters.
func BindPath() Bind {
	return tagBinder("path", func(r *http.Request, name string) (string, bool) {
		v := chi.URLParam(r, name)
		return v, v != ""
	})
}

// BindQuery fills fields tagged `query:"name"` from the query string.
func BindQuery() Bind {
	return tagBinder("query", func(r *http.Request, name string) (string, bool) {
		q := r.URL.Query()
		return q.Get(name), q.Has(name)
	})
}

func tagBinder(tag string, lookup func(*http.Request, string) (string, bool)) Bind {
	return func(r *http.Request, v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("%w: target must be a pointer to struct", ErrUnsupportedType)
		}
		rv = rv.Elem()
		rt := rv.Type()
		for i := range rt.NumField() {
			name := rt.Field(i).Tag.Get(tag)
			if name == "" || name == "-" {
				continue
			}
			raw, ok := lookup(r, name)
			if !ok {
				continue
			}
			if err := setField(rv.Field(i), raw); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidParam, name, err)
			}
		}
		return nil
	}
}

func setField(f reflect.Value, raw string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		f.SetBool(b)
	default:
		return ErrUnsupportedType
	}
	return nil
}

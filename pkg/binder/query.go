package binder

import (
	"net/http"
)

// Query binds URL query parameters into struct fields tagged with `query:"name"`.
// Fields without a query tag are left untouched.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		if len(values) == 0 {
			return nil
		}
		return bindToStruct(v, "query", values, ErrFailedToParseQuery)
	}
}

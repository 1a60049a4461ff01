// Package binder decodes HTTP requests into Go structs.
//
// JSON reads application/json bodies, optionally rejecting unknown fields
// with DisallowUnknownFields, and Query fills fields tagged `query:"name"`
// from the URL. Both return functions that plug into handler.WithBinders.
package binder

// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request value decoded by the
// configured binders and returns a Response. Wrap turns it into an
// http.HandlerFunc:
//
//	type checkoutRequest struct {
//		PriceID string `json:"priceId" validate:"required"`
//	}
//
//	h := handler.Wrap(
//		func(ctx handler.Context, req checkoutRequest) handler.Response {
//			return handler.JSON(http.StatusOK, map[string]string{"url": url})
//		},
//		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()),
//	)
//
// Errors render as JSON bodies of the form {"error": "..."}. HTTPError sets
// the status and may carry a redirectTo hint; ValidationError renders 400
// with per-field messages; any other error becomes a 500 and its message is
// not exposed.
package handler

// Package clientip resolves the caller's IP address behind proxies.
//
// Forwarding headers are trusted in the order of DefaultHeaders, so the
// service must sit behind a proxy that overwrites them. The address is used
// to key rate limits for anonymous callers.
//
//	r.Use(clientip.Middleware)
//	ip := clientip.FromContext(r.Context())
package clientip

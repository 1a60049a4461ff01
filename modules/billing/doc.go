// Package billing exposes the subscription billing HTTP endpoints.
//
// Routes, relative to the mount point:
//
//	POST /checkout      start a hosted checkout for {"priceId": "..."}
//	GET  /checkout      return URL after payment, syncs and redirects to the dashboard
//	POST /portal        open the customer billing portal
//	POST /webhook       processor notifications, verified by signature
//	GET  /subscription  current user's subscription summary
//	GET  /plans         plan catalog
//
// Authenticated routes expect identity.Middleware to run first. Webhooks are
// acknowledged with 200 unless the event could not be stored, in which case
// the processor is asked to redeliver with a 5xx.
package billing

// Package core holds the HTTP plumbing shared by crmkit handlers: typed
// handlers that return a Response, request binders, validation and JSON
// responses with stable error codes.
//
//	r.Post("/registration", core.Wrap(h.register, core.BindJSON()))
//
// A handler returns either JSON(status, data) or JSONError(err). JSONError
// maps HTTPError and ValidationError to their status codes; anything else
// becomes a 500 whose body never carries the internal error text.
package core

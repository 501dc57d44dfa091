// Package defense hardens every request before a route handler sees it.
//
// Chain applies the stages in a fixed order: security headers, per-client
// rate limiting under the API prefix, a request body cap with parsing,
// sanitization of operator keys and markup, the parameter pollution guard,
// and response compression. Later stages assume the earlier ones ran, so the
// order is part of the contract.
//
// Handlers read the parsed, cleaned input with ParamsFrom instead of
// touching r.Body or r.Form.
package defense

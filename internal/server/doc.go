// Package server exposes the resize engine over HTTP.
//
// # Routes
//
//   - GET /{path}: the image at path under the source root, transformed by
//     the query parameters w, h, dpr, output, algorithm, filter and bg.
//   - GET /_capabilities: algorithms, filters, formats and defaults as JSON.
//   - GET /_stats: cache counters as JSON.
//   - GET /: always 404.
//
// HEAD is accepted wherever GET is. Image responses support Range and
// If-None-Match requests.
//
// # Status Codes
//
// Errors are classified with errs.KindOf:
//   - validation: 400
//   - source_not_found: 404
//   - decode, invalid_dimensions: 422
//   - encode, internal: 500
//
// Error bodies are JSON:
//
//	{"error": "validation", "message": "params.resolve: output: ...", "request_id": "..."}
//
// # Response Headers
//
// Images are sent with Cache-Control "public, max-age=31536000",
// X-Content-Type-Options "nosniff" and Access-Control-Allow-Origin "*".
// Cached results also carry an ETag derived from their cache key.
package server

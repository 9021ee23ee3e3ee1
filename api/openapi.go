package api

import _ "embed"

// OpenAPISpec is served by the swagger UI under /swagger/openapi.json.
//
//go:embed openapi.json
var OpenAPISpec []byte

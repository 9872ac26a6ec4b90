package swagger

import _ "embed"

// OpenAPI contains the embedded OpenAPI YAML document for the service API.
//
//go:embed openapi.yaml
var OpenAPI []byte

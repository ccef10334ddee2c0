package swagger

import _ "embed"

// OpenAPI is the gateway contract served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte

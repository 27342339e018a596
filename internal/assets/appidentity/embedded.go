package appidentityassets

import _ "embed"

// YAML is the identity used when no .fulmen/app.yaml is found on disk.
//
//go:embed app.yaml
var YAML []byte

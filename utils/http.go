// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by everything that calls the Codeforces API. The
// problemset payload is a few megabytes, hence the generous timeout.
var HTTPClient = &http.Client{
	Timeout: 60 * time.Second,
}

package net

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
)

const maxDumpBytes = 2048

// PrintHTTPResponse logs the response head and the start of its body at
// debug level.
func PrintHTTPResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	respDump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		slog.Debug("error dumping response", "error", err)
		return
	}
	if len(respDump) > maxDumpBytes {
		respDump = respDump[:maxDumpBytes]
	}
	slog.Debug("http response", "status", resp.StatusCode, "dump", string(respDump))
}

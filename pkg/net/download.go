package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrorURLNotFound = errors.New("URL not found")

func getResp(ctx context.Context, u string) (resp *http.Response, err error) {
	c, err := GetHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP client: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	req.Header.Set("User-Agent", clientAgent)

	return c.Do(req) //nolint:gosec // G107: URL supplied by the operator on the command line
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Download saves the content at u to filepath.
func Download(ctx context.Context, u string, filepath string) (retErr error) {
	out, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	resp, err := getResp(ctx, u)
	if err != nil {
		return fmt.Errorf("error executing HTTP Get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrorURLNotFound
	}

	if resp.StatusCode != http.StatusOK {
		PrintHTTPResponse(resp)
		return fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, u)
	}

	if _, err = io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}

	return nil
}

// Resolve returns a local path for location. Local paths are returned as
// is; http(s) URLs are downloaded into dir, keeping the file extension so
// the reader can be picked from it.
func Resolve(ctx context.Context, location, dir string) (string, error) {
	if location == "" {
		return "", errors.New("input location required")
	}
	if !IsRemote(location) {
		return location, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid input URL %s: %w", location, err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "input.csv"
	}

	f, err := os.CreateTemp(dir, "gridpulse-*-"+name)
	if err != nil {
		return "", fmt.Errorf("error creating temp file: %w", err)
	}
	local := f.Name()
	f.Close()

	if err := Download(ctx, location, local); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("error downloading %s: %w", location, err)
	}

	slog.Debug("input downloaded", "url", location, "path", filepath.Base(local))
	return local, nil
}

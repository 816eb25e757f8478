package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mchmarny/gridpulse/pkg/net"
	"github.com/mchmarny/gridpulse/pkg/panel"
)

const (
	monthsAll = "all"

	outputFileMode = 0600
)

// inputLoader reads datasets from local paths or http(s) URLs. Remote
// files are downloaded into a scratch dir removed by close.
type inputLoader struct {
	dir string
}

func (l *inputLoader) load(ctx context.Context, name, location string) (*panel.Table, error) {
	if net.IsRemote(location) && l.dir == "" {
		dir, err := os.MkdirTemp("", appName+"-")
		if err != nil {
			return nil, fmt.Errorf("creating download dir: %w", err)
		}
		l.dir = dir
	}

	path, err := net.Resolve(ctx, location, l.dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s dataset: %w", name, err)
	}

	return panel.ReadFile(name, path)
}

func (l *inputLoader) close() {
	if l.dir != "" {
		os.RemoveAll(l.dir)
	}
}

// parseMonths reads a comma separated list of calendar months. "all" clears
// the filter and returns an empty, non-nil slice.
func parseMonths(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, monthsAll) {
		return []int{}, nil
	}

	parts := strings.Split(s, ",")
	months := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m, err := strconv.Atoi(p)
		if err != nil || m < 1 || m > 12 {
			return nil, fmt.Errorf("invalid month %q, expected 1-12 or %q", p, monthsAll)
		}
		months = append(months, m)
	}
	if len(months) == 0 {
		return nil, fmt.Errorf("no months in %q", s)
	}
	return months, nil
}

func writeResults[T panel.Row](path string, header []string, rows []T) error {
	if path == "" {
		return nil
	}
	if err := panel.WriteCSVFile(path, header, rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(path, outputFileMode); err != nil {
		slog.Debug("error setting output file mode", "path", path, "error", err)
	}
	slog.Info("results written", "path", path, "rows", len(rows))
	return nil
}

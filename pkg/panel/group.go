package panel

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Group is one partition of a record set.
type Group[T any] struct {
	Key   string
	Items []T
}

// GroupBy partitions items by key, preserving input order inside each group.
// Groups are returned sorted by key.
func GroupBy[T any](items []T, key func(T) string) []Group[T] {
	m := make(map[string][]T)
	for _, it := range items {
		k := key(it)
		m[k] = append(m[k], it)
	}

	groups := make([]Group[T], 0, len(m))
	for k, v := range m {
		groups = append(groups, Group[T]{Key: k, Items: v})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// MapGroups applies fn to every group with at most workers goroutines and
// returns the results in group order. A non-positive workers value uses the
// number of CPUs. The first error cancels the remaining groups.
func MapGroups[T, R any](ctx context.Context, groups []Group[T], workers int, fn func(context.Context, Group[T]) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]R, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, grp := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fn(ctx, grp)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

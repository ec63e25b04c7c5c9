package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"VelRegistry/internal/storage"
)

// SplitKey parses a map-API key: "name" addresses the latest version,
// "name@version" a specific one. The split is on the last "@".
func SplitKey(key string) (name, version string) {
	if i := strings.LastIndex(key, "@"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// Item is one (name, version, object) triple from Items.
type Item struct {
	Name    string
	Version string
	Object  any
}

// Get loads the object addressed by key.
func (r *Registry) Get(ctx context.Context, key string) (any, error) {
	name, version := SplitKey(key)
	return r.Load(ctx, name, version)
}

// Set stores obj at key: a bare name auto-increments, "name@version" pins
// the version.
func (r *Registry) Set(ctx context.Context, key string, obj any) (string, error) {
	name, version := SplitKey(key)
	if version == "" || version == storage.LatestAlias {
		return r.Save(ctx, name, obj)
	}
	return r.SaveVersion(ctx, name, version, obj)
}

// Contains reports whether key addresses a committed object.
func (r *Registry) Contains(ctx context.Context, key string) (bool, error) {
	name, version := SplitKey(key)
	return r.Has(ctx, name, version)
}

// Remove deletes the object addressed by key; a bare name removes every
// version.
func (r *Registry) Remove(ctx context.Context, key string) error {
	name, version := SplitKey(key)
	if version == "" {
		return r.DeleteAll(ctx, name)
	}
	return r.Delete(ctx, name, version)
}

// Keys lists every committed object name.
func (r *Registry) Keys(ctx context.Context) ([]string, error) {
	return r.ListNames(ctx)
}

// Values loads the latest version of every object.
func (r *Registry) Values(ctx context.Context) ([]any, error) {
	items, err := r.Items(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(items))
	for i, it := range items {
		values[i] = it.Object
	}
	return values, nil
}

// Items loads the latest version of every object with its coordinates.
func (r *Registry) Items(ctx context.Context) ([]Item, error) {
	names, err := r.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(names))
	for _, name := range names {
		version, err := r.LatestVersion(ctx, name)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		obj, err := r.Load(ctx, name, version)
		if err != nil {
			return nil, fmt.Errorf("load %s@%s: %w", name, version, err)
		}
		items = append(items, Item{Name: name, Version: version, Object: obj})
	}
	return items, nil
}

// Pop loads the object addressed by key and deletes it.
func (r *Registry) Pop(ctx context.Context, key string) (any, error) {
	name, version := SplitKey(key)
	resolved, err := r.resolveVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	obj, err := r.Load(ctx, name, resolved)
	if err != nil {
		return nil, err
	}
	if err := r.Delete(ctx, name, resolved); err != nil {
		return nil, err
	}
	return obj, nil
}

// SetDefault returns the object at key when present; otherwise it stores
// obj there and returns it.
func (r *Registry) SetDefault(ctx context.Context, key string, obj any) (any, error) {
	ok, err := r.Contains(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return r.Get(ctx, key)
	}
	if _, err := r.Set(ctx, key, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Update stores every entry of objs.
func (r *Registry) Update(ctx context.Context, objs map[string]any) error {
	for key, obj := range objs {
		if _, err := r.Set(ctx, key, obj); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// Clear deletes every version of every object.
func (r *Registry) Clear(ctx context.Context) error {
	names, err := r.ListNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := r.DeleteAll(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

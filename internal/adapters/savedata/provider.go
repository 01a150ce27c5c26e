// Package savedata supplies a player's most recent raw score set.
package savedata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/rks/internal/domain/model"
)

// Provider fetches the latest save for an identity.
type Provider interface {
	Fetch(ctx context.Context, identity string) (model.SaveSet, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, identity string) (model.SaveSet, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context, identity string) (model.SaveSet, error) {
	return f(ctx, identity)
}

// Dir serves saves dropped into a directory by an external sync job:
// <dir>/<identity>.json holds the raw save and an optional
// <dir>/<identity>.summary.json holds the player summary.
type Dir struct {
	dir string
}

// NewDir returns a provider reading from dir.
func NewDir(dir string) *Dir {
	return &Dir{dir: dir}
}

// Fetch implements Provider.
func (d *Dir) Fetch(ctx context.Context, identity string) (model.SaveSet, error) {
	if err := ctx.Err(); err != nil {
		return model.SaveSet{}, err
	}
	if identity == "" || filepath.Base(identity) != identity || identity == "." || identity == ".." {
		return model.SaveSet{}, fmt.Errorf("%w: bad identity %q", ErrNoSave, identity)
	}

	data, err := os.ReadFile(filepath.Join(d.dir, identity+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return model.SaveSet{}, ErrNoSave
	}
	if err != nil {
		return model.SaveSet{}, err
	}
	set, err := Decode(bytes.NewReader(data))
	if err != nil {
		return model.SaveSet{}, err
	}

	summary, err := os.ReadFile(filepath.Join(d.dir, identity+".summary.json"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return model.SaveSet{}, err
	case json.Valid(summary):
		set.Summary = json.RawMessage(bytes.TrimSpace(summary))
	default:
		return model.SaveSet{}, fmt.Errorf("%w: summary is not JSON", ErrMalformedSave)
	}
	return set, nil
}

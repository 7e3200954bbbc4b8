package panels

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/inboxops/autotag/internal/model"
	"github.com/inboxops/autotag/pkg/registry"
)

// RegistryFetcher adapts the registry API client to the Fetcher
// interface. The registry stores one row per alias; rows sharing an id
// are folded into a single panel, preserving row order.
type RegistryFetcher struct {
	client registry.Client
}

// NewRegistryFetcher wraps a registry client.
func NewRegistryFetcher(client registry.Client) *RegistryFetcher {
	return &RegistryFetcher{client: client}
}

func (f *RegistryFetcher) Panels(ctx context.Context) ([]model.Panel, error) {
	rows, err := f.client.List(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "panels: list registry")
	}

	var out []model.Panel
	index := make(map[int]int)
	for _, row := range rows {
		if i, ok := index[row.ID]; ok {
			out[i].Names = append(out[i].Names, row.Name)
			continue
		}
		index[row.ID] = len(out)
		out = append(out, model.Panel{ID: row.ID, Names: []string{row.Name}})
	}
	return out, nil
}

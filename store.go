package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/akhenakh/rastercoding/geocoding"
	"github.com/akhenakh/rastercoding/product"
)

// rootID addresses the product loaded at startup.
const rootID = "root"

var errUnknownRaster = errors.New("unknown raster")

// subsetNamespace seeds the name-based ids of derived rasters, so identical
// subset requests resolve to the same id.
var subsetNamespace = uuid.MustParse("6f1c1c52-3f55-4a43-9b1e-5b8e1d0b6a57")

// store holds the root product and the rasters derived from it by subsetting.
type store struct {
	root    *product.Product
	cache   *ccache.Cache[*product.Product]
	ttl     time.Duration
	metrics *metrics

	inflight singleflight.Group
}

func newStore(root *product.Product, cfg Config, m *metrics) *store {
	slog.Info("configuring subset cache", "max_size", cfg.CacheMaxSize,
		"items_to_prune", cfg.CacheItemsToPrune, "ttl", cfg.CacheTTL)
	return &store{
		root:    root,
		cache:   ccache.New(ccache.Configure[*product.Product]().MaxSize(cfg.CacheMaxSize).ItemsToPrune(cfg.CacheItemsToPrune)),
		ttl:     cfg.CacheTTL,
		metrics: m,
	}
}

// get returns the product with the given id.
func (s *store) get(id string) (*product.Product, error) {
	if id == "" || id == rootID {
		return s.root, nil
	}
	item := s.cache.Get(id)
	if item == nil || item.Expired() {
		return nil, fmt.Errorf("%w: %s", errUnknownRaster, id)
	}
	item.Extend(s.ttl)
	return item.Value(), nil
}

// subset derives the raster described by def from the raster parentID and
// returns its id.
func (s *store) subset(parentID string, def *geocoding.SubsetDef) (string, *product.Product, error) {
	parent, err := s.get(parentID)
	if err != nil {
		return "", nil, err
	}
	if err := def.Validate(parent.Raster.SceneRasterWidth(), parent.Raster.SceneRasterHeight()); err != nil {
		return "", nil, err
	}

	key, err := json.Marshal(struct {
		Parent string               `json:"parent"`
		Subset *geocoding.SubsetDef `json:"subset"`
	}{parentID, def})
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewSHA1(subsetNamespace, key).String()

	if item := s.cache.Get(id); item != nil && !item.Expired() {
		return id, item.Value(), nil
	}

	v, err, shared := s.inflight.Do(id, func() (any, error) {
		// a call that just finished may have stored it
		if item := s.cache.Get(id); item != nil && !item.Expired() {
			return item.Value(), nil
		}
		start := time.Now()
		p, err := parent.Subset(id, def)
		if err != nil {
			return nil, err
		}
		kind := product.Kind(parent.Raster.GeoCoding())
		s.metrics.observeTransfer(kind, p.Raster.GeoCoding() != nil, time.Since(start))
		s.cache.Set(id, p, s.ttl)
		slog.Info("derived raster",
			"id", id, "parent", parentID, "geocoding", product.Kind(p.Raster.GeoCoding()),
			"width", p.Raster.SceneRasterWidth(), "height", p.Raster.SceneRasterHeight())
		return p, nil
	})
	if err != nil {
		return "", nil, err
	}
	if shared {
		slog.Debug("subset request shared", "id", id)
	}
	return id, v.(*product.Product), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	formwizard "github.com/goliatone/go-formwizard"
	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/pkg/contract"
	"github.com/goliatone/go-formwizard/pkg/definition"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/httpstore"
	"github.com/goliatone/go-formwizard/pkg/store/memory"
	"github.com/goliatone/go-formwizard/pkg/store/sqlite"
	"github.com/goliatone/go-formwizard/pkg/wizards"
)

var errNoLocalDB = errors.New("no local database: set store.kind to sqlite or configure snapshots")

// resources is everything built from the configuration for one command.
type resources struct {
	engine   *formwizard.Engine
	catalog  *definition.Catalog
	contract *contract.Contract
	static   refdata.Static
	refs     refdata.Provider
	db       *sqlite.DB
}

func (r *resources) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// open builds the engine described by the loaded configuration.
func (a *app) open(ctx context.Context) (*resources, error) {
	cfg := a.cfg
	catalog, err := a.loadCatalog()
	if err != nil {
		return nil, err
	}
	static, err := a.loadRefData()
	if err != nil {
		return nil, err
	}
	c, err := a.loadContract(ctx)
	if err != nil {
		return nil, err
	}

	res := &resources{catalog: catalog, contract: c, static: static}
	upstream := refdata.Provider(static)
	if path := cfg.LocalDB(); path != "" {
		db, err := sqlite.Open(path, sqlite.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		res.db = db
		upstream = refdata.Chain(db, static)
	}
	res.refs = refdata.NewCached(upstream,
		refdata.WithTTL(cfg.RefDataTTL()),
		refdata.WithLogger(a.logger.Named("refdata")),
	)

	factory, err := a.storeFactory(res.db)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	options := []formwizard.Option{
		formwizard.WithCatalog(catalog),
		formwizard.WithRefData(res.refs),
		formwizard.WithContract(c),
		formwizard.WithStoreFactory(factory),
		formwizard.WithStrict(cfg.Strict),
		formwizard.WithLogger(a.logger),
	}
	if res.db != nil {
		options = append(options, formwizard.WithSnapshots(res.db))
	}
	engine, err := formwizard.New(options...)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	res.engine = engine
	return res, nil
}

func (a *app) loadCatalog() (*definition.Catalog, error) {
	var (
		catalog *definition.Catalog
		err     error
	)
	if dir := a.cfg.Definitions; dir != "" {
		catalog, err = definition.LoadFS(os.DirFS(dir))
	} else {
		catalog, err = wizards.Catalog()
	}
	if err != nil {
		return nil, err
	}
	if base := strings.TrimRight(a.cfg.AssetBase, "/"); base != "" {
		for _, id := range catalog.IDs() {
			def, _ := catalog.Get(id)
			def.AssetBase = joinAssetBase(base, def.AssetBase)
		}
	}
	return catalog, nil
}

// joinAssetBase roots a definition's relative asset path at base. Absolute
// URLs are kept.
func joinAssetBase(base, own string) string {
	switch {
	case own == "":
		return base
	case strings.Contains(own, "://"):
		return own
	default:
		return base + "/" + strings.TrimLeft(own, "/")
	}
}

func (a *app) loadRefData() (refdata.Static, error) {
	if a.cfg.RefData.File == "" {
		return wizards.RefData()
	}
	data, err := a.readFile(a.cfg.RefData.File)
	if err != nil {
		return nil, fmt.Errorf("read refdata: %w", err)
	}
	return refdata.ParseYAML(data)
}

func (a *app) loadContract(ctx context.Context) (*contract.Contract, error) {
	logger := contract.WithLogger(a.logger.Named("contract"))
	if a.cfg.OpenAPI == "" {
		return wizards.Contract(ctx, logger)
	}
	data, err := a.readFile(a.cfg.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("read openapi: %w", err)
	}
	return contract.Load(ctx, data, logger)
}

func (a *app) storeFactory(db *sqlite.DB) (formwizard.StoreFactory, error) {
	cfg := a.cfg.Store
	switch cfg.Kind {
	case config.StoreSQLite:
		return func(def *model.Definition) (store.Store, error) {
			return db.Entities(def.Resource), nil
		}, nil
	case config.StoreHTTP:
		client := &http.Client{Timeout: a.cfg.StoreTimeout()}
		return func(def *model.Definition) (store.Store, error) {
			options := []httpstore.Option{
				httpstore.WithHTTPClient(client),
				httpstore.WithLogger(a.logger.Named("store")),
			}
			for key, value := range cfg.Headers {
				options = append(options, httpstore.WithHeader(key, value))
			}
			return httpstore.New(cfg.URL, def.Resource, options...)
		}, nil
	case config.StoreMemory:
		return func(*model.Definition) (store.Store, error) {
			return memory.New(memory.WithLogger(a.logger.Named("store"))), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}


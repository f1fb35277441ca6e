// Package wizards bundles the registry wizards shipped with the binary:
// farmer, employee and fpo, plus the reference data their selects use.
package wizards

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/goliatone/go-formwizard/pkg/contract"
	"github.com/goliatone/go-formwizard/pkg/definition"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/refdata"
)

const (
	Farmer   = "farmer"
	Employee = "employee"
	FPO      = "fpo"
)

//go:embed defs/*.yaml
var embeddedDefs embed.FS

//go:embed refs/refdata.yaml
var embeddedRefs []byte

//go:embed api/openapi.yaml
var embeddedAPI []byte

// FS returns the bundled definition files.
func FS() fs.FS {
	sub, err := fs.Sub(embeddedDefs, "defs")
	if err != nil {
		// the embed directive guarantees the subpath exists
		panic(err)
	}
	return sub
}

// Catalog loads and lints the bundled definitions. Every call returns fresh
// copies so callers may mutate them.
func Catalog(options ...definition.Option) (*definition.Catalog, error) {
	catalog, err := definition.LoadFS(FS(), options...)
	if err != nil {
		return nil, fmt.Errorf("wizards: %w", err)
	}
	return catalog, nil
}

// Get returns one bundled wizard.
func Get(id string) (*model.Definition, error) {
	catalog, err := Catalog()
	if err != nil {
		return nil, err
	}
	return catalog.Get(id)
}

// RefData returns the bundled reference data.
func RefData() (refdata.Static, error) {
	return refdata.ParseYAML(embeddedRefs)
}

// Contract loads the bundled OpenAPI description of the registry backend.
// It covers the farmer wizard and FPO creation.
func Contract(ctx context.Context, options ...contract.Option) (*contract.Contract, error) {
	return contract.Load(ctx, embeddedAPI, options...)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/pkg/contract"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/httpstore"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wizard resources over HTTP",
		Long: `Serves every wizard resource at /api/{resource} backed by the configured
memory or sqlite store, checking writes against the OpenAPI contract. Point
another formwizard at it with store.kind=http and store.url=http://host/api.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Kind == config.StoreHTTP {
				return errors.New("serve needs a memory or sqlite store")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer res.Close()
			router, err := a.router(res)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

// router mounts one store handler per resource plus the reference data
// lists the wizards' selects read.
func (a *app) router(res *resources) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/refdata/{source}", a.refDataHandler(res.refs))

	mounted := make(map[string]bool)
	for _, id := range res.catalog.IDs() {
		def, _ := res.catalog.Get(id)
		if mounted[def.Resource] {
			continue
		}
		backend, err := res.engine.Store(def)
		if err != nil {
			return nil, err
		}
		r.Mount("/api/"+def.Resource, httpstore.NewHandler(backend,
			httpstore.WithValidator(contractCheck(res.contract, def)),
			httpstore.WithMaxUpload(a.cfg.Server.MaxUpload),
			httpstore.WithHandlerLogger(a.logger.Named(def.Resource)),
		))
		mounted[def.Resource] = true
		a.logger.Debug("mounted resource", zap.String("resource", def.Resource), zap.String("wizard", def.ID))
	}
	return r, nil
}

// contractCheck validates writes against def's operations. Operations the
// contract does not describe pass through.
func contractCheck(c *contract.Contract, def *model.Definition) httpstore.Validator {
	return func(op string, dto map[string]any) *store.Error {
		if c == nil {
			return nil
		}
		operation := def.Operations.Create
		if op == httpstore.OpUpdate {
			operation = def.Operations.Update
		}
		if operation == "" || !c.Has(operation) {
			return nil
		}
		err := c.Validate(operation, dto)
		if err == nil {
			return nil
		}
		var violation *contract.ViolationError
		if errors.As(err, &violation) {
			return violation.StoreError()
		}
		return &store.Error{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
}

func (a *app) refDataHandler(refs refdata.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		options, err := refs.List(r.Context(), source, r.URL.Query().Get("parent"))
		w.Header().Set("Content-Type", "application/json")
		if errors.Is(err, refdata.ErrUnknownSource) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(&store.Error{Status: http.StatusNotFound, Message: fmt.Sprintf("unknown source %q", source)})
			return
		}
		if err != nil {
			a.logger.Error("refdata lookup failed", zap.String("source", source), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(&store.Error{Status: http.StatusInternalServerError, Message: "reference data unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(options)
	}
}

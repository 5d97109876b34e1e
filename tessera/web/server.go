// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tessera.io/tessera/tessera/cache"
	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/ingest"
	"tessera.io/tessera/tessera/proposals"
	"tessera.io/tessera/tessera/publisher"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/web/api"
)

var mon = monkit.Package()

// Error is the default error class for the web package.
var Error = errs.Class("web")

// Services bundles everything the HTTP surface exposes.
type Services struct {
	Store     registry.DB
	Registry  *registry.Service
	Publisher *publisher.Service
	Proposals *proposals.Service
	Impact    *impact.Service
	Ingest    *ingest.Service
	Cache     *cache.Cache
}

// Server exposes the API over HTTP.
//
// architecture: Endpoint
type Server struct {
	log      *zap.Logger
	config   Config
	listener net.Listener
	server   http.Server
}

// NewServer creates a server bound to listener.
func NewServer(log *zap.Logger, config Config, services Services, listener net.Listener) *Server {
	server := &Server{
		log:      log,
		config:   config,
		listener: listener,
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(securityHeadersMiddleware(config.Environment == "production"))
	if config.RateLimitEnabled {
		router.Use(newRateLimiter(config.RateLimitPerMinute).middleware(log))
	}

	misc := api.NewMisc(log.Named("api:misc"), services.Registry, services.Publisher, services.Store, config.Version)
	// Health endpoints stay outside auth so probes need no key.
	router.HandleFunc("/health", misc.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/live", misc.Live).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", misc.Ready).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(newAuthenticator(log.Named("auth"), config, services.Registry, services.Store).middleware)

	teams := api.NewTeams(log.Named("api:teams"), services.Registry)
	v1.HandleFunc("/teams", teams.Create).Methods(http.MethodPost)
	v1.HandleFunc("/teams", teams.List).Methods(http.MethodGet)
	v1.HandleFunc("/teams/{id}", teams.Get).Methods(http.MethodGet)
	v1.HandleFunc("/teams/{id}", teams.Update).Methods(http.MethodPatch)
	v1.HandleFunc("/teams/{id}", teams.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/teams/{id}/api-keys", teams.IssueAPIKey).Methods(http.MethodPost)
	v1.HandleFunc("/api-keys/{id}", teams.RevokeAPIKey).Methods(http.MethodDelete)

	assets := api.NewAssets(log.Named("api:assets"), services.Registry, services.Publisher, services.Impact, services.Store, services.Cache)
	v1.HandleFunc("/assets", assets.Create).Methods(http.MethodPost)
	v1.HandleFunc("/assets", assets.List).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}", assets.Get).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}", assets.Update).Methods(http.MethodPatch)
	v1.HandleFunc("/assets/{id}", assets.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/assets/{id}/contracts", assets.PublishContract).Methods(http.MethodPost)
	v1.HandleFunc("/assets/{id}/contracts", assets.ListContracts).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}/impact", assets.Impact).Methods(http.MethodPost)
	v1.HandleFunc("/assets/{id}/lineage", assets.Lineage).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}/dependencies", assets.DeclareDependency).Methods(http.MethodPost)
	v1.HandleFunc("/assets/{id}/audit-results", assets.RecordAuditRun).Methods(http.MethodPost)
	v1.HandleFunc("/assets/{id}/audit-history", assets.AuditHistory).Methods(http.MethodGet)

	contracts := api.NewContracts(log.Named("api:contracts"), services.Registry, services.Store, services.Cache)
	v1.HandleFunc("/contracts/{id}", contracts.Get).Methods(http.MethodGet)
	v1.HandleFunc("/contracts/{id}/registrations", contracts.ListRegistrations).Methods(http.MethodGet)
	v1.HandleFunc("/registrations", contracts.Register).Methods(http.MethodPost)
	v1.HandleFunc("/registrations/{id}", contracts.GetRegistration).Methods(http.MethodGet)
	v1.HandleFunc("/registrations/{id}", contracts.UpdateRegistration).Methods(http.MethodPatch)
	v1.HandleFunc("/registrations/{id}", contracts.Unregister).Methods(http.MethodDelete)

	props := api.NewProposals(log.Named("api:proposals"), services.Proposals)
	v1.HandleFunc("/proposals", props.List).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{id}", props.Get).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{id}/status", props.Status).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{id}/acknowledge", props.Acknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/proposals/{id}/object", props.Object).Methods(http.MethodPost)
	v1.HandleFunc("/proposals/{id}/withdraw", props.Withdraw).Methods(http.MethodPost)
	v1.HandleFunc("/proposals/{id}/force", props.Force).Methods(http.MethodPost)
	v1.HandleFunc("/proposals/{id}/publish", props.Publish).Methods(http.MethodPost)
	v1.HandleFunc("/bulk/acknowledgments", props.BulkAcknowledge).Methods(http.MethodPost)
	v1.HandleFunc("/bulk/contracts", misc.BulkPublish).Methods(http.MethodPost)

	sync := api.NewSync(log.Named("api:sync"), services.Ingest, config.GitSyncPath)
	v1.HandleFunc("/sync/dbt/upload", sync.UploadDbt).Methods(http.MethodPost)
	v1.HandleFunc("/sync/dbt/impact", sync.DbtImpact).Methods(http.MethodPost)
	v1.HandleFunc("/sync/openapi", sync.UploadOpenAPI).Methods(http.MethodPost)
	v1.HandleFunc("/sync/graphql", sync.UploadGraphQL).Methods(http.MethodPost)
	v1.HandleFunc("/sync/push", sync.Push).Methods(http.MethodPost)
	v1.HandleFunc("/sync/pull", sync.Pull).Methods(http.MethodPost)

	v1.HandleFunc("/search", misc.Search).Methods(http.MethodGet)
	v1.HandleFunc("/schemas/validate", misc.ValidateSchema).Methods(http.MethodPost)

	server.server = http.Server{Handler: router}
	return server
}

// Run starts the server and blocks until ctx is canceled.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		server.log.Info("server listening", zap.String("address", server.listener.Addr().String()))
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close shuts down the server without waiting for open requests.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

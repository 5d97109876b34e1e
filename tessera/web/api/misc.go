// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tessera.io/tessera/tessera/publisher"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/schemadiff"
)

// Misc handles search, schema validation, bulk publishing and health.
type Misc struct {
	log       *zap.Logger
	service   *registry.Service
	publisher *publisher.Service
	store     registry.DB
	version   string
}

// NewMisc creates the controller for the endpoints that do not belong
// to a single entity.
func NewMisc(log *zap.Logger, service *registry.Service, pub *publisher.Service, store registry.DB, version string) *Misc {
	return &Misc{log: log, service: service, publisher: pub, store: store, version: version}
}

func (c *Misc) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	var types []string
	if raw := q.Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}
	results, err := c.service.Search(ctx, q.Get("q"), limit, types)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, results)
}

// ValidateSchema parses a schema document without touching the store.
func (c *Misc) ValidateSchema(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Schema       json.RawMessage       `json:"schema"`
		SchemaFormat registry.SchemaFormat `json:"schema_format"`
		Guarantees   json.RawMessage       `json:"guarantees"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if req.SchemaFormat == "" {
		req.SchemaFormat = registry.FormatJSONSchema
	}

	var fields int
	switch req.SchemaFormat {
	case registry.FormatJSONSchema:
		doc, err := schemadiff.Parse(req.Schema)
		if err != nil {
			serveJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
			return
		}
		fields = len(doc)
	case registry.FormatAvro:
		var raw map[string]interface{}
		if err := json.Unmarshal(req.Schema, &raw); err != nil {
			serveJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
			return
		}
		doc, err := schemadiff.FromAvro(raw)
		if err != nil {
			serveJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
			return
		}
		fields = len(doc)
	default:
		ServeError(c.log, w, r, registry.ErrValidation.New("unknown schema format %q", req.SchemaFormat))
		return
	}
	if len(req.Guarantees) > 0 {
		if _, err := schemadiff.ParseGuarantees(req.Guarantees); err != nil {
			serveJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
			return
		}
	}
	serveJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "fields": fields})
}

// BulkPublish runs the multi-contract publish workflow.
func (c *Misc) BulkPublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req publisher.BulkRequest
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, req.PublishedBy); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	// Every named asset must belong to the caller. Assets that do not
	// exist yet are left for the publisher to report per item.
	environment := req.Environment
	if environment == "" {
		environment = "production"
	}
	for _, item := range req.Items {
		asset, err := c.store.Assets().GetByFQN(ctx, item.FQN, environment)
		if registry.ErrNotFound.Has(err) {
			continue
		}
		if err != nil {
			ServeError(c.log, w, r, err)
			return
		}
		if err := RequireOwner(ctx, asset.OwnerTeamID); err != nil {
			ServeError(c.log, w, r, err)
			return
		}
	}
	req.PublishedByUserID = ActorID(ctx)
	result, err := c.publisher.PublishBulk(ctx, req)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, result)
}

// Health reports application and store health.
func (c *Misc) Health(w http.ResponseWriter, r *http.Request) {
	overall, dbStatus := "ok", "ok"
	status := http.StatusOK
	if err := c.store.Ping(r.Context()); err != nil {
		c.log.Warn("health check failed", zap.Error(err))
		overall, dbStatus = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}
	serveJSON(w, status, map[string]string{
		"status":   overall,
		"database": dbStatus,
		"version":  c.version,
	})
}

// Live always succeeds while the process serves requests.
func (c *Misc) Live(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready succeeds once the store answers pings.
func (c *Misc) Ready(w http.ResponseWriter, r *http.Request) {
	if err := c.store.Ping(r.Context()); err != nil {
		ServeError(c.log, w, r, Error.Wrap(err))
		return
	}
	serveJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes Search.start/stats/cancel (spec §6) over HTTP,
// mirroring the teacher's gin-based RegisterRoutes pattern.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/diamondcore/engine/parser"
	"github.com/AleutianAI/diamondcore/engine/search"
)

var validate = validator.New()

// Handlers binds a search.Manager to gin handler functions. collab is the
// fixed set of ObjectStore/FilterRuntime/ResultSink collaborators this
// server instance was deployed with — the HTTP surface is single-tenant
// with respect to its object corpus, matching the teacher's own
// single-service-per-process deployment model.
type Handlers struct {
	manager *search.Manager
	collab  search.Collaborators
	cfg     search.Config
	logger  *slog.Logger
}

// NewHandlers constructs Handlers around manager, launching every started
// search against collab using cfg.
func NewHandlers(manager *search.Manager, collab search.Collaborators, cfg search.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{manager: manager, collab: collab, cfg: cfg, logger: logger}
}

// RegisterRoutes registers all /v1/search routes with the given gin
// router group.
//
// Endpoints:
//
//	POST /v1/search        - Start a search from an inline filter spec
//	GET  /v1/search/:id    - Fetch Search.stats for a running/completed search
//	POST /v1/search/:id/cancel - Search.cancel
//	GET  /v1/healthz       - Liveness probe
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.POST("/search", h.startSearch)
	rg.GET("/search/:id", h.getStats)
	rg.POST("/search/:id/cancel", h.cancelSearch)
	rg.GET("/healthz", h.healthz)
}

// startSearchRequest is the POST /v1/search body: a filter-spec document
// plus an optional scope map (spec §1: scope/cookie subsystem is an
// external collaborator; the core only threads it through).
type startSearchRequest struct {
	FilterSpec string            `json:"filter_spec" validate:"required"`
	Scope      map[string]string `json:"scope"`
}

type startSearchResponse struct {
	SearchID string `json:"search_id"`
}

func (h *Handlers) startSearch(c *gin.Context) {
	var req startSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	table, err := parser.Parse(newStringReader(req.FilterSpec), parser.DefaultContext())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handle, err := h.manager.Start(context.Background(), table, search.Scope(req.Scope), h.collab, h.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, startSearchResponse{SearchID: handle.ID})
}

func (h *Handlers) getStats(c *gin.Context) {
	id := c.Param("id")
	st, err := h.manager.Stats(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handlers) cancelSearch(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (h *Handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

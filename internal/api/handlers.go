package api

import (
	"net/http"

	"codeberg.org/mutker/whistlectl/internal/binding"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"github.com/gin-gonic/gin"
)

type bindingRequest struct {
	Config string `json:"config" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"bindings": len(s.opts.Bindings.Snapshot())}, "")
}

func (s *Server) listItems(c *gin.Context) {
	items := s.opts.Items.List()
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, newItemView(item))
	}
	respondSuccess(c, http.StatusOK, views, "")
}

func (s *Server) getItem(c *gin.Context) {
	item, ok := s.opts.Items.Get(c.Param("name"))
	if !ok {
		respondError(c, http.StatusNotFound, "item has no published state", gin.H{"name": c.Param("name")})
		return
	}
	respondSuccess(c, http.StatusOK, newItemView(item), "")
}

func (s *Server) listBindings(c *gin.Context) {
	respondSuccess(c, http.StatusOK, s.opts.Bindings.Snapshot(), "")
}

func (s *Server) putBinding(c *gin.Context) {
	var req bindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "request body must contain a config", gin.H{"error": err.Error()})
		return
	}

	rec, err := s.opts.Resolver.Register(c.Request.Context(), c.Param("name"), req.Config)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.HasCode(err, binding.ErrInvalidConfig):
			status = http.StatusBadRequest
		case errors.HasCode(err, binding.ErrDeviceNotFound):
			status = http.StatusNotFound
		}
		respondError(c, status, "failed to register binding", gin.H{
			"code":  errors.CodeOf(err),
			"error": err.Error(),
		})
		return
	}

	respondSuccess(c, http.StatusOK, rec, "binding registered")
}

func (s *Server) deleteBinding(c *gin.Context) {
	if !s.opts.Resolver.Unregister(c.Param("name")) {
		respondError(c, http.StatusNotFound, "binding not registered", gin.H{"name": c.Param("name")})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"name": c.Param("name")}, "binding removed")
}

func (s *Server) refreshBinding(c *gin.Context) {
	res, err := s.opts.Refresher.RefreshBinding(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, http.StatusNotFound, "binding not registered", gin.H{"name": c.Param("name")})
		return
	}
	respondSuccess(c, http.StatusOK, newResultView(res), "")
}

func (s *Server) refreshAll(c *gin.Context) {
	go s.opts.Refresher.RefreshAll(s.ctx)
	respondSuccess(c, http.StatusAccepted, gin.H{"bindings": len(s.opts.Bindings.Snapshot())}, "refresh started")
}

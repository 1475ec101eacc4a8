package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/gogotex/pagesync/internal/hub"
	"github.com/gogotex/pagesync/internal/versions"
	"github.com/gogotex/pagesync/pkg/logger"
)

type summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	IsLocked  bool      `json:"is_locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RegisterDocumentRoutes mounts the document lifecycle API. Mutations of a
// document with connected sessions go through its hub so those sessions see
// them.
func RegisterDocumentRoutes(r gin.IRouter, svc *service.Store, reg *hub.Registry, vm *versions.Manager) {
	r.GET("/api/documents", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		out := make([]summary, 0, len(list))
		for _, d := range list {
			out = append(out, summary{ID: d.ID, Title: d.Title, PageCount: len(d.Pages), IsLocked: d.IsLocked, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/api/documents", func(c *gin.Context) {
		var req struct {
			Title string `json:"title"`
		}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		d, err := svc.Create(c.Request.Context(), req.Title)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	})

	r.GET("/api/documents/:id", func(c *gin.Context) {
		d, err := svc.Load(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.PUT("/api/documents/:id", func(c *gin.Context) {
		var req struct {
			Title *string  `json:"title"`
			Pages []string `json:"pages"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := reg.Replace(c.Request.Context(), c.Param("id"), req.Title, req.Pages)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.DELETE("/api/documents/:id", func(c *gin.Context) {
		if err := reg.Delete(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/api/documents/:id/versions", func(c *gin.Context) {
		list, err := vm.List(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.POST("/api/documents/:id/versions/:versionId/restore", func(c *gin.Context) {
		d, err := reg.Restore(c.Request.Context(), c.Param("id"), c.Param("versionId"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.GET("/api/documents/:id/users", func(c *gin.Context) {
		if _, err := svc.Load(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		users, err := reg.Users(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	})
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, document.ErrLocked):
		c.JSON(http.StatusLocked, gin.H{"error": "document is locked"})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

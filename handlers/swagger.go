package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>pagesync Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "pagesync", "version": "v0.1.0" },
  "components": {
    "schemas": {
      "Version": { "type": "object", "properties": { "id": {"type":"string"}, "timestamp": {"type":"string","format":"date-time"}, "editor": {"type":"string"}, "summary": {"type":"string"}, "pages": {"type":"array","items":{"type":"string"}} } },
      "Document": { "type": "object", "properties": { "id": {"type":"string"}, "title": {"type":"string"}, "pages": {"type":"array","items":{"type":"string"}}, "versions": {"type":"array","items":{"$ref":"#/components/schemas/Version"}}, "is_locked": {"type":"boolean"}, "created_at": {"type":"string","format":"date-time"}, "updated_at": {"type":"string","format":"date-time"} } }
    }
  },
  "paths": {
    "/api/documents": {
      "get": { "summary": "List documents, most recently updated first", "responses": { "200": { "description": "document summaries" } } },
      "post": {
        "summary": "Create a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created", "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Document"}}} }, "400": { "description": "bad input" } }
      }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "put": {
        "summary": "Replace title and/or pages; live sessions receive content_update",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"pages":{"type":"array","items":{"type":"string"}}}}}}},
        "responses": { "200": { "description": "updated document" }, "400": { "description": "bad input" }, "404": { "description": "not found" }, "423": { "description": "document is locked" } }
      },
      "delete": { "summary": "Delete a document and close its sessions", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/versions": {
      "get": { "summary": "List versions, newest first", "responses": { "200": { "description": "versions" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/versions/{versionId}/restore": {
      "post": { "summary": "Restore a version's pages", "responses": { "200": { "description": "restored document" }, "404": { "description": "document or version not found" }, "423": { "description": "document is locked" } } }
    },
    "/api/documents/{id}/users": {
      "get": { "summary": "Users connected to a document", "responses": { "200": { "description": "roster in join order" }, "404": { "description": "not found" } } }
    },
    "/ws/{id}": {
      "get": { "summary": "Realtime session (websocket upgrade); query user_id, user_name, color, token", "responses": { "101": { "description": "switching protocols" }, "404": { "description": "not found" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`

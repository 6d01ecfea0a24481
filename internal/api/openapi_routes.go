package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	openAPIFile = "docs/api/openapi.yaml"
	docsTitle   = "Edu Challenge API"
)

// registerOpenAPIRoutes 提供 /openapi 与 /docs/redoc、/docs/ui
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
	engine.GET("/docs/ui", serveSwaggerUI)
}

func serveOpenAPI(c *gin.Context) {
	if _, err := os.Stat(openAPIFile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "OpenAPI 文档不存在"})
		return
	}
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.File(openAPIFile)
}

// vendorOr 本地静态资源存在时使用本地，否则回退 CDN
func vendorOr(local, cdn string) string {
	if _, err := os.Stat(strings.TrimPrefix(local, "/")); err == nil {
		return local
	}
	return cdn
}

func serveRedoc(c *gin.Context) {
	script := vendorOr("/static/vendors/redoc/redoc.standalone.js",
		"https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js")

	html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>` + docsTitle + ` - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
      body{margin:0;padding:0;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif}
      .topbar{position:fixed;top:0;left:0;right:0;height:48px;display:flex;align-items:center;justify-content:space-between;padding:0 12px;background:#f8fafc;border-bottom:1px solid #e5e7eb;z-index:9999}
      .brand{font-weight:600;color:#0f172a}
      .nav a{color:#0f172a;text-decoration:none;margin-left:12px;padding:6px 10px;border-radius:6px;border:1px solid #d1d5db;background:#ffffff}
      .wrap{margin-top:48px}
    </style>
  </head>
  <body>
    <div class="topbar">
      <div class="brand">` + docsTitle + `</div>
      <div class="nav">
        <a href="/openapi" target="_blank">OpenAPI YAML</a>
        <a href="/docs/ui">Swagger UI</a>
      </div>
    </div>
    <div class="wrap"><redoc spec-url="/openapi" expand-responses="200,201"></redoc></div>
    <script src="` + script + `"></script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func serveSwaggerUI(c *gin.Context) {
	css := vendorOr("/static/vendors/swagger-ui/swagger-ui.css",
		"https://unpkg.com/swagger-ui-dist@5/swagger-ui.css")
	bundle := vendorOr("/static/vendors/swagger-ui/swagger-ui-bundle.js",
		"https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js")

	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>` + docsTitle + ` - Swagger UI</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <link rel="stylesheet" href="` + css + `">
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="` + bundle + `" crossorigin></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis],
        layout: 'BaseLayout'
      })
    </script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// DocsPath is where the OpenAPI UI for the admin API is served.
const DocsPath = "/docs"

// RegisterDocs serves the generated OpenAPI UI. Models stay collapsed and the
// bearer token entered in the UI survives reloads, since nearly every admin
// route is guarded.
func RegisterDocs(r gin.IRouter) {
	r.GET(DocsPath+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.DocExpansion("list"),
		ginSwagger.DefaultModelsExpandDepth(-1),
		ginSwagger.PersistAuthorization(true),
	))
}

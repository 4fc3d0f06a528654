// routes.go
package api

import (
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/go-chi/chi/v5"

	"github.com/ytfqj/ermrest/internal/ermerr"
)

// SetupRoutes wires the full ERMrest HTTP surface from spec.md section 6:
// schema introspection, per-resource annotation/acl/acl_binding CRUD,
// entity reads, and the model-change-fan-out websocket. Schema documents
// can be large for wide catalogs, so the schema, table and entity GET
// responses are gzip-compressed the way a REST catalog service typically
// serves bulk JSON; the metadata and watch routes are not compressed.
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(s.Log))

	r.Route("/ermrest/catalog/{cid}", func(r chi.Router) {
		rg := r.With(gziphandler.GzipHandler)
		rg.Get("/schema", s.GetSchema)
		rg.Get("/schema/{sname}", s.GetSchemaHandler)
		rg.Get("/schema/{sname}/table/{tname}", s.GetTable)
		rg.Get("/entity/{sname}/{tname}", s.GetEntity)

		mountMetadata(r, "/schema/{sname}", schemaResolver, s)
		mountMetadata(r, "/schema/{sname}/table/{tname}", tableResolver, s)
		mountMetadata(r, "/schema/{sname}/table/{tname}/column/{cname}", columnResolver, s)
		mountMetadata(r, "/schema/{sname}/table/{tname}/foreignkey/{fkname}", fkeyResolver, s)

		r.Get("/watch", s.HandleWatch)
		r.Get("/watch/status", s.GetWatchStatus)
	})

	return r
}

func (s *Server) GetSchemaHandler(w http.ResponseWriter, r *http.Request) {
	rc, err := s.rcFor(r, chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	sch, err := resolveSchema(rc.Model, chi.URLParam(r, "sname"))
	if err != nil {
		writeError(w, ermerr.NotFound("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, sch.PreJSON())
}

// mountMetadata attaches the annotation/acl/acl_binding sub-routes shared
// by every resource kind under prefix.
func mountMetadata(r chi.Router, prefix string, resolve resourceResolver, s *Server) {
	annGet, annPut, annDel := s.AnnotationHandlers(resolve)
	r.Get(prefix+"/annotation/{uri}", annGet)
	r.Put(prefix+"/annotation/{uri}", annPut)
	r.Delete(prefix+"/annotation/{uri}", annDel)

	aclGet, aclPut, aclDel := s.ACLHandlers(resolve)
	r.Get(prefix+"/acl/{aclname}", aclGet)
	r.Put(prefix+"/acl/{aclname}", aclPut)
	r.Delete(prefix+"/acl/{aclname}", aclDel)

	dynGet, dynPut, dynDel := s.DynaclHandlers(resolve)
	r.Get(prefix+"/acl_binding/{bname}", dynGet)
	r.Put(prefix+"/acl_binding/{bname}", dynPut)
	r.Delete(prefix+"/acl_binding/{bname}", dynDel)
}

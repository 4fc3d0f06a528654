package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ytfqj/ermrest/internal/authz"
	"github.com/ytfqj/ermrest/internal/ermerr"
	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/internal/reqcontext"
)

// identity resolves the caller's bearer token, falling back to the
// anonymous role on a missing header (see identity.Decoder.FromRequest).
func (s *Server) identity(r *http.Request) (reqcontext.Identity, error) {
	return s.Decoder.FromRequest(r, s.Config.AnonymousRole)
}

func (s *Server) rcFor(r *http.Request, catalogID string) (*reqcontext.RequestContext, error) {
	id, err := s.identity(r)
	if err != nil {
		return nil, ermerr.Forbidden("%v", err)
	}
	return s.requestContext(r.Context(), catalogID, id)
}

// GetSchema serves GET /ermrest/catalog/{cid}/schema: every schema (and its
// tables) the caller can enumerate, matching the original implementation's
// bulk schema document endpoint.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	rc, err := s.rcFor(r, chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]*model.SchemaJSON)
	for _, sch := range rc.Model.Schemas() {
		if authz.HasRight(rc, sch, "enumerate") == reqcontext.Deny {
			continue
		}
		out[sch.Name] = sch.PreJSON()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetTable(w http.ResponseWriter, r *http.Request) {
	rc, err := s.rcFor(r, chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := resolveTable(rc.Model, chi.URLParam(r, "sname"), chi.URLParam(r, "tname"))
	if err != nil {
		writeError(w, ermerr.NotFound("%v", err))
		return
	}
	if authz.HasRight(rc, t, "enumerate") == reqcontext.Deny {
		writeError(w, ermerr.Forbidden("not permitted to enumerate table %q", t.Name))
		return
	}
	writeJSON(w, http.StatusOK, t.PreJSON())
}

// resourceResolver resolves a Resource from the request's URL params
// against a pinned Model, used to share one generic annotation/acl/
// acl_binding CRUD implementation across schema/table/column/foreign_key
// routes (the original implementation's "resource" URL AST node plays the
// same unifying role).
type resourceResolver func(m *model.Model, r *http.Request) (model.Resource, error)

func schemaResolver(m *model.Model, r *http.Request) (model.Resource, error) {
	return resolveSchema(m, chi.URLParam(r, "sname"))
}

func tableResolver(m *model.Model, r *http.Request) (model.Resource, error) {
	return resolveTable(m, chi.URLParam(r, "sname"), chi.URLParam(r, "tname"))
}

func columnResolver(m *model.Model, r *http.Request) (model.Resource, error) {
	return resolveColumn(m, chi.URLParam(r, "sname"), chi.URLParam(r, "tname"), chi.URLParam(r, "cname"))
}

func fkeyResolver(m *model.Model, r *http.Request) (model.Resource, error) {
	return resolveForeignKey(m, chi.URLParam(r, "sname"), chi.URLParam(r, "tname"), chi.URLParam(r, "fkname"))
}

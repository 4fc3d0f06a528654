package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ytfqj/ermrest/internal/authz"
	"github.com/ytfqj/ermrest/internal/ermerr"
	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/internal/reqcontext"
)

// AnnotationHandlers returns the GET/PUT/DELETE handlers for one resource
// kind's "annotation/{uri}" sub-resource, parameterized by resolve so the
// same CRUD logic serves schema, table, column, and foreign-key
// annotations (spec.md section 6's four annotation endpoint families).
func (s *Server) AnnotationHandlers(resolve resourceResolver) (get, put, del http.HandlerFunc) {
	get = func(w http.ResponseWriter, r *http.Request) {
		_, res, err := s.resolveForRead(r, resolve, "enumerate")
		if err != nil {
			writeError(w, err)
			return
		}
		uri := chi.URLParam(r, "uri")
		val, ok := res.Annotations()[uri]
		if !ok {
			writeError(w, ermerr.NotFound("no annotation %q on this resource", uri))
			return
		}
		writeJSON(w, http.StatusOK, val)
	}

	put = func(w http.ResponseWriter, r *http.Request) {
		rc, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, ermerr.BadData("reading request body: %v", err))
			return
		}
		var value any
		if err := json.Unmarshal(body, &value); err != nil {
			writeError(w, ermerr.BadData("annotation body is not valid JSON: %v", err))
			return
		}
		uri := chi.URLParam(r, "uri")
		if err := s.Store.UpsertAnnotation(rc.Ctx, res.ResourceKind(), res.ResourceRID(), uri, value); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}

	del = func(w http.ResponseWriter, r *http.Request) {
		rc, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		uri := chi.URLParam(r, "uri")
		if err := s.Store.DeleteAnnotation(rc.Ctx, res.ResourceKind(), res.ResourceRID(), uri); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	return
}

// ACLHandlers returns the GET/PUT/DELETE handlers for one resource kind's
// "acl/{aclname}" sub-resource. Reading any ACL requires "owner" (ERMrest
// treats the ACL document itself as administrator-only, not part of the
// enumerable surface).
func (s *Server) ACLHandlers(resolve resourceResolver) (get, put, del http.HandlerFunc) {
	get = func(w http.ResponseWriter, r *http.Request) {
		_, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		aclname := chi.URLParam(r, "aclname")
		roles, ok := res.Acl().Get(aclname)
		if !ok {
			writeError(w, ermerr.NotFound("no acl %q set on this resource", aclname))
			return
		}
		writeJSON(w, http.StatusOK, roles)
	}

	put = func(w http.ResponseWriter, r *http.Request) {
		rc, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, ermerr.BadData("reading request body: %v", err))
			return
		}
		var roles []string
		if err := json.Unmarshal(body, &roles); err != nil {
			writeError(w, ermerr.BadData("acl body must be a JSON array of role names: %v", err))
			return
		}
		aclname := chi.URLParam(r, "aclname")
		if err := s.Store.UpsertACL(rc.Ctx, res.ResourceKind(), res.ResourceRID(), aclname, roles); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}

	del = func(w http.ResponseWriter, r *http.Request) {
		rc, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		aclname := chi.URLParam(r, "aclname")
		if err := s.Store.DeleteACL(rc.Ctx, res.ResourceKind(), res.ResourceRID(), aclname); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	return
}

// dynaclBindingWire is the JSON shape a PUT to an acl_binding endpoint
// accepts, mirroring the original implementation's binding definition
// document (a projection path plus the right names it governs).
type dynaclBindingWire struct {
	Projection     []projectionWire `json:"projection"`
	ProjectionType string           `json:"projection_type"`
	Types          []string         `json:"types"`
}

type projectionWire struct {
	Column               string `json:"column,omitempty"`
	ForeignKeyConstraint string `json:"foreign_key,omitempty"`
	Inbound              bool   `json:"inbound,omitempty"`
}

// DynaclHandlers returns the GET/PUT/DELETE handlers for one resource
// kind's "acl_binding/{name}" sub-resource (spec.md section 6).
func (s *Server) DynaclHandlers(resolve resourceResolver) (get, put, del http.HandlerFunc) {
	get = func(w http.ResponseWriter, r *http.Request) {
		_, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		name := chi.URLParam(r, "bname")
		for _, b := range res.Dynacls() {
			if b.Name == name {
				writeJSON(w, http.StatusOK, b)
				return
			}
		}
		writeError(w, ermerr.NotFound("no acl_binding %q on this resource", name))
	}

	put = func(w http.ResponseWriter, r *http.Request) {
		rc, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, ermerr.BadData("reading request body: %v", err))
			return
		}
		var wire dynaclBindingWire
		if err := json.Unmarshal(body, &wire); err != nil {
			writeError(w, ermerr.BadData("acl_binding body is malformed: %v", err))
			return
		}
		binding, err := toDynaclBinding(chi.URLParam(r, "bname"), wire)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.Store.UpsertDynaclBinding(rc.Ctx, res.ResourceKind(), res.ResourceRID(), binding.Name, binding); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}

	del = func(w http.ResponseWriter, r *http.Request) {
		rc, res, err := s.resolveForWrite(r, resolve, "owner")
		if err != nil {
			writeError(w, err)
			return
		}
		name := chi.URLParam(r, "bname")
		if err := s.Store.DeleteDynaclBinding(rc.Ctx, res.ResourceKind(), res.ResourceRID(), name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	return
}

func toDynaclBinding(name string, wire dynaclBindingWire) (*model.DynaclBinding, error) {
	pt := model.ProjectionACL
	switch wire.ProjectionType {
	case "", "acl":
		pt = model.ProjectionACL
	case "nonnull":
		pt = model.ProjectionNonNull
	default:
		return nil, ermerr.BadData("unknown projection_type %q", wire.ProjectionType)
	}
	proj := make([]model.ProjectionElement, len(wire.Projection))
	for i, p := range wire.Projection {
		proj[i] = model.ProjectionElement{Column: p.Column, ForeignKeyConstraint: p.ForeignKeyConstraint, Inbound: p.Inbound}
	}
	return &model.DynaclBinding{Name: name, Projection: proj, ProjectionType: pt, Types: wire.Types}, nil
}

// resolveForRead builds a request context, resolves the resource, and
// rejects the request unless minRight is satisfied (Deny only — callers
// reading public metadata treat Indeterminate as visible, since annotation
// text carries no row-level sensitivity of its own).
func (s *Server) resolveForRead(r *http.Request, resolve resourceResolver, minRight string) (*reqcontext.RequestContext, model.Resource, error) {
	rc, err := s.rcFor(r, chi.URLParam(r, "cid"))
	if err != nil {
		return nil, nil, err
	}
	res, err := resolve(rc.Model, r)
	if err != nil {
		return nil, nil, ermerr.NotFound("%v", err)
	}
	if authz.HasRight(rc, res, minRight) == reqcontext.Deny {
		return nil, nil, ermerr.Forbidden("not permitted to %s this resource", minRight)
	}
	return rc, res, nil
}

// resolveForWrite is resolveForRead's administrative counterpart: catalog
// metadata administration (ACLs, acl_bindings, and annotation mutation) has
// no row context to gate dynamically, so Indeterminate is treated the same
// as Deny here — a design decision recorded in DESIGN.md.
func (s *Server) resolveForWrite(r *http.Request, resolve resourceResolver, requiredRight string) (*reqcontext.RequestContext, model.Resource, error) {
	rc, err := s.rcFor(r, chi.URLParam(r, "cid"))
	if err != nil {
		return nil, nil, err
	}
	res, err := resolve(rc.Model, r)
	if err != nil {
		return nil, nil, ermerr.NotFound("%v", err)
	}
	if authz.HasRight(rc, res, requiredRight) != reqcontext.Allow {
		return nil, nil, ermerr.Forbidden("not permitted to %s this resource", requiredRight)
	}
	return rc, res, nil
}

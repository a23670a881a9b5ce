package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/hydrate"
	"github.com/bramble-labs/bramble/loader"
	"github.com/bramble-labs/bramble/store"
	"github.com/bramble-labs/bramble/tree"
)

// handleNodeTypes returns every registered node type.
func (s *Server) handleNodeTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

// handleNodeType returns one node type by its tag.
func (s *Server) handleNodeType(w http.ResponseWriter, r *http.Request) {
	typeName := r.PathValue("type")
	def, err := s.registry.Get(typeName)
	if err != nil {
		msg := fmt.Sprintf("node type %q not found", typeName)
		if suggestions := s.registry.Suggest(typeName); len(suggestions) > 0 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", msg,
				"did you mean "+strings.Join(suggestions, ", ")+"?")
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", msg)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// readDefinitionBody reads a raw tree document body (JSON or YAML) and
// parses it through the loader. On failure it writes the error response
// and returns nil.
func (s *Server) readDefinitionBody(w http.ResponseWriter, r *http.Request) *tree.TreeDefinition {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return nil
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return nil
	}

	def, err := loader.Load(body)
	if err != nil {
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"tree definition is invalid", diagMessages(diagErr.Diagnostics)...)
			return nil
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return nil
	}
	return def
}

// handleSaveTree saves a definition into the catalog as a new version.
func (s *Server) handleSaveTree(w http.ResponseWriter, r *http.Request) {
	def := s.readDefinitionBody(w, r)
	if def == nil {
		return
	}

	diags := def.ValidateWithRegistry(s.registry)
	if tree.HasErrors(diags) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"tree definition is invalid", diagMessages(diags)...)
		return
	}

	rec, err := s.catalog.Save(r.Context(), def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	s.publish(bus.NewEvent(bus.EventTreeSaved, "").
		WithTree(rec.ID).
		WithPayload("version", rec.Version))
	writeJSON(w, http.StatusCreated, rec)
}

// handleListTrees returns the latest version of every tree, optionally
// filtered by ?tag= (repeatable) and ?status=.
func (s *Server) handleListTrees(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{Tags: r.URL.Query()["tag"]}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := store.TreeStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_STATUS",
				fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = status
	}

	records, err := s.catalog.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleSearchTrees returns latest versions matching ?q= against name,
// description, and tags.
func (s *Server) handleSearchTrees(w http.ResponseWriter, r *http.Request) {
	records, err := s.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleValidateTree reports diagnostics for a definition without saving it.
func (s *Server) handleValidateTree(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return
	}

	type validation struct {
		Valid       bool              `json:"valid"`
		Diagnostics []tree.Diagnostic `json:"diagnostics"`
	}

	def, err := loader.Load(body)
	if err != nil {
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			writeJSON(w, http.StatusOK, validation{Valid: false, Diagnostics: diagErr.Diagnostics})
			return
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	diags := def.ValidateWithRegistry(s.registry)
	if diags == nil {
		diags = []tree.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, validation{Valid: !tree.HasErrors(diags), Diagnostics: diags})
}

// handleGetTree returns one version of a tree (?version=, latest when
// omitted).
func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version, ok := intQuery(r, "version", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_VERSION", "version must be an integer")
		return
	}

	rec, err := s.catalog.Get(r.Context(), id, version)
	if err != nil {
		if errors.Is(err, store.ErrTreeNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("tree %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteTree removes one version (?version=) or the whole tree.
func (s *Server) handleDeleteTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version, ok := intQuery(r, "version", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_VERSION", "version must be an integer")
		return
	}

	if err := s.catalog.Delete(r.Context(), id, version); err != nil {
		if errors.Is(err, store.ErrTreeNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("tree %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	event := bus.NewEvent(bus.EventTreeDeleted, "").WithTree(id)
	if version > 0 {
		event = event.WithPayload("version", version)
	}
	s.publish(event)
	w.WriteHeader(http.StatusNoContent)
}

// handleTreeVersions returns every stored version of a tree.
func (s *Server) handleTreeVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := s.catalog.ListVersions(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTreeNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("tree %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleExportTree builds the stored definition and extracts it back out,
// returning the canonical form.
func (s *Server) handleExportTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version, ok := intQuery(r, "version", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_VERSION", "version must be an integer")
		return
	}

	rec, err := s.catalog.Get(r.Context(), id, version)
	if err != nil {
		if errors.Is(err, store.ErrTreeNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("tree %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	res, err := hydrate.Build(rec.Definition, s.registry)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "BUILD_ERROR", err.Error())
		return
	}
	exported, err := hydrate.ExtractTree(res, s.registry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EXTRACT_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exported)
}

// publish sends an event when a bus is configured.
func (s *Server) publish(event bus.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event)
}

// diagMessages flattens diagnostics into detail strings for the error
// envelope.
func diagMessages(diags []tree.Diagnostic) []string {
	msgs := make([]string, 0, len(diags))
	for _, d := range diags {
		msg := d.Message
		if d.Path != "" {
			msg = d.Path + ": " + msg
		}
		msgs = append(msgs, fmt.Sprintf("[%s] %s", d.Code, msg))
	}
	return msgs
}

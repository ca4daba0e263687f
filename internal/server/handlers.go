package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/engine"
)

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, r, apperr.Errorf(apperr.InvalidRequest, "upload", "file exceeds the %d MB limit", h.maxUpload>>20))
			return
		}
		h.writeError(w, r, apperr.Errorf(apperr.InvalidRequest, "upload", "no file provided: %w", err))
		return
	}
	defer file.Close()

	resp, err := h.svc.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	req, err := h.parse(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.svc.Analyze(r.Context(), req, req.Params["query"])
	respond(h, w, r, resp, err)
}

func (h *Handler) math(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Math)
}

func (h *Handler) aggregate(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Aggregate)
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Filter)
}

func (h *Handler) pivot(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Pivot)
}

func (h *Handler) unpivot(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Unpivot)
}

func (h *Handler) dates(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Dates)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	operate(h, w, r, h.svc.Join)
}

// operate parses the form into an engine request and runs fn on it.
func operate[T any](h *Handler, w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, req engine.Request) (*T, error)) {
	req, err := h.parse(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := fn(r.Context(), req)
	respond(h, w, r, resp, err)
}

func respond[T any](h *Handler, w http.ResponseWriter, r *http.Request, resp *T, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// formAliases maps HTTP field names onto operation parameter names.
var formAliases = map[string]string{
	"right_file_path":  "right",
	"right_sheet_name": "right_sheet",
}

// parse reads a multipart or urlencoded form. The first value of each field wins.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (engine.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return engine.Request{}, apperr.Errorf(apperr.InvalidRequest, "parse", "could not read form: %w", err)
	}

	params := make(map[string]string, len(r.Form))
	for k, vs := range r.Form {
		if len(vs) == 0 {
			continue
		}
		if alias, ok := formAliases[k]; ok {
			k = alias
		}
		params[k] = vs[0]
	}
	return engine.Request{
		FilePath:  params["file_path"],
		SheetName: params["sheet_name"],
		Params:    params,
	}, nil
}

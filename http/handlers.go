package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"caserisk/assess"
	"caserisk/labels"
)

// Handler serves one assessment service. It holds no per-request state.
type Handler struct {
	service  *assess.Service
	catalogs CatalogSource
	logger   *zap.Logger
	upgrader websocket.Upgrader
	maxBody  int64
}

func NewHandler(service *assess.Service, catalogs CatalogSource, logger *zap.Logger, maxBody int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		service:  service,
		catalogs: catalogs,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		maxBody: maxBody,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleForm)
	mux.HandleFunc("POST /{$}", h.handleSubmit)
	mux.Handle("GET /static/", http.FileServerFS(staticFS))
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/schema", h.handleSchema)
	mux.HandleFunc("POST /api/assess", h.handleAssess)
	mux.HandleFunc("GET /api/ws/assess", h.handleLive)
}

// table picks the label table for r: an explicit lang parameter wins over
// Accept-Language.
func (h *Handler) table(r *http.Request, lang string) *labels.Table {
	if lang == "" {
		lang = r.URL.Query().Get("lang")
	}
	return h.catalogs.Catalog().Match(lang, r.Header.Get("Accept-Language"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	artifact := h.service.Artifact()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"model":    artifact.Kind(),
		"features": artifact.Schema().Len(),
		"classes":  artifact.Classes(),
	})
}

type schemaFeature struct {
	Index      int      `json:"index"`
	Code       string   `json:"code"`
	Label      string   `json:"label"`
	Help       string   `json:"help"`
	Importance *float64 `json:"importance,omitempty"`
}

type schemaResponse struct {
	Language string          `json:"language"`
	Classes  int             `json:"classes"`
	Features []schemaFeature `json:"features"`
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	table := h.table(r, "")
	schema := h.service.Schema()

	resp := schemaResponse{
		Language: table.Language().String(),
		Classes:  h.service.Classes(),
		Features: make([]schemaFeature, 0, schema.Len()),
	}
	for i, code := range schema.Codes() {
		f := schemaFeature{
			Index: i,
			Code:  code,
			Label: table.LabelFor(code),
			Help:  table.Help(code),
		}
		if entry, ok := table.Lookup(code); ok {
			importance := entry.Importance
			f.Importance = &importance
		}
		resp.Features = append(resp.Features, f)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// assessRequest is the body of POST /api/assess and of each live message.
type assessRequest struct {
	Features map[string]any `json:"features"`
	Lang     string         `json:"lang,omitempty"`
}

type distributionEntry struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

type assessResponse struct {
	assess.Prediction
	TierName     string              `json:"tier_name"`
	Severity     string              `json:"severity"`
	Guidance     string              `json:"guidance"`
	Distribution []distributionEntry `json:"distribution"`
}

type errorResponse struct {
	Error   string            `json:"error"`
	Missing []string          `json:"missing,omitempty"`
	Unknown []string          `json:"unknown,omitempty"`
	Invalid map[string]string `json:"invalid,omitempty"`
}

func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := decodeRequest(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	status, body := h.evaluate(h.table(r, req.Lang), req)
	if status == http.StatusInternalServerError {
		h.logger.Error("assessment failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("error", body.(errorResponse).Error))
	}
	h.writeJSON(w, status, body)
}

// evaluate scores req and returns the status and body to send. It is shared by
// the JSON endpoint and the live websocket.
func (h *Handler) evaluate(table *labels.Table, req assessRequest) (int, any) {
	if req.Features == nil {
		return http.StatusUnprocessableEntity, errorResponse{
			Error:   "features object is required",
			Missing: h.service.Schema().Codes(),
		}
	}

	vector, err := assess.Coerce(req.Features)
	if err == nil {
		var p assess.Prediction
		p, err = h.service.Predict(vector)
		if err == nil {
			return http.StatusOK, describe(table, p)
		}
	}

	var mismatch *assess.SchemaMismatchError
	if errors.As(err, &mismatch) {
		return http.StatusUnprocessableEntity, errorResponse{
			Error:   mismatch.Error(),
			Missing: mismatch.Missing,
			Unknown: mismatch.Unknown,
			Invalid: mismatch.Invalid,
		}
	}
	return http.StatusInternalServerError, errorResponse{Error: err.Error()}
}

// describe attaches the tier wording and chart labels to p.
func describe(table *labels.Table, p assess.Prediction) assessResponse {
	tier := table.Tier(p.Tier)
	resp := assessResponse{
		Prediction:   p,
		TierName:     tier.Name,
		Severity:     tier.Severity,
		Guidance:     tier.Guidance,
		Distribution: make([]distributionEntry, len(p.Probabilities)),
	}
	for i, prob := range p.Probabilities {
		resp.Distribution[i] = distributionEntry{
			Label:       labels.LevelLabel(assess.TierFor(i)),
			Probability: prob,
		}
	}
	return resp
}

func decodeRequest(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON sends v with status. The header is already out when encoding
// fails, so the failure can only be logged.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write json response", zap.Int("status", status), zap.Error(err))
	}
}

package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"maps"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"caserisk/assess"
	"caserisk/labels"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"percent": func(p float64) string { return fmt.Sprintf("%.1f%%", p*100) },
	"scaled":  func(p float64) string { return fmt.Sprintf("%.1f", p*100) },
}).ParseFS(templateFS, "templates/index.html"))

type inputView struct {
	Code  string
	Label string
	Help  string
	Value string
	// Column is 1 or 2. Codes alternate between the columns so each row
	// holds two consecutive codes.
	Column int
}

type barView struct {
	Label       string
	Probability float64
}

type resultView struct {
	Tier       int
	TierName   string
	Severity   string
	Guidance   string
	Confidence string
	Bars       []barView
}

type pageView struct {
	Lang   string
	Text   labels.Text
	Inputs []inputView
	Result *resultView
	Error  string
	// Details lists the individual schema problems behind Error.
	Details []string
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	table := h.table(r, "")
	view := h.page(table, func(string) string { return "0" })
	h.render(w, r, http.StatusOK, view)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	table := h.table(r, r.PostForm.Get("lang"))
	view := h.page(table, r.PostForm.Get)

	vector, err := assess.FromForm(h.service.Schema(), r.PostForm.Get)
	if err == nil {
		var p assess.Prediction
		p, err = h.service.Predict(vector)
		if err == nil {
			view.Result = result(table, p)
			h.render(w, r, http.StatusOK, view)
			return
		}
	}

	status := http.StatusInternalServerError
	var mismatch *assess.SchemaMismatchError
	if errors.As(err, &mismatch) {
		status = http.StatusUnprocessableEntity
		view.Details = mismatchDetails(mismatch)
	} else {
		h.logger.Error("assessment failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
	}
	view.Error = err.Error()
	h.render(w, r, status, view)
}

// page lays the schema out row by row over two columns, in schema order.
func (h *Handler) page(table *labels.Table, value func(code string) string) pageView {
	codes := h.service.Schema().Codes()

	view := pageView{
		Lang: table.Language().String(),
		Text: table.Text(),
	}
	for i, code := range codes {
		in := inputView{
			Code:  code,
			Label: table.LabelFor(code),
			Help:  table.Help(code),
			Value:  value(code),
			Column: i%2 + 1,
		}
		if in.Value == "" {
			in.Value = "0"
		}
		view.Inputs = append(view.Inputs, in)
	}
	return view
}

func result(table *labels.Table, p assess.Prediction) *resultView {
	tier := table.Tier(p.Tier)
	res := &resultView{
		Tier:       p.Tier,
		TierName:   tier.Name,
		Severity:   tier.Severity,
		Guidance:   tier.Guidance,
		Confidence: fmt.Sprintf("%.1f%%", p.Confidence),
	}
	for i, prob := range p.Probabilities {
		res.Bars = append(res.Bars, barView{
			Label:       labels.LevelLabel(assess.TierFor(i)),
			Probability: prob,
		})
	}
	return res
}

func mismatchDetails(err *assess.SchemaMismatchError) []string {
	var details []string
	if len(err.Missing) > 0 {
		details = append(details, "missing: "+strings.Join(err.Missing, ", "))
	}
	if len(err.Unknown) > 0 {
		details = append(details, "unknown: "+strings.Join(err.Unknown, ", "))
	}
	for _, code := range slices.Sorted(maps.Keys(err.Invalid)) {
		details = append(details, code+": "+err.Invalid[code])
	}
	return details
}

// render executes into a buffer first so a template failure can still become
// a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, view pageView) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		h.logger.Error("render page",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

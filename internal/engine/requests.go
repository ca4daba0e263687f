package engine

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klytics/xlengine/internal/agent"
	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/sheet"
	"github.com/klytics/xlengine/internal/table"
)

// AllowedExtensions are the upload extensions accepted by Upload.
var AllowedExtensions = []string{".xlsx", ".xls"}

// outputPrefix names the persisted result of each mutating operation.
var outputPrefix = map[ops.Kind]string{
	ops.KindMath:        "math_result",
	ops.KindFilter:      "filtered",
	ops.KindPivot:       "pivot",
	ops.KindUnpivot:     "unpivot",
	ops.KindDateExtract: "dates",
	ops.KindJoin:        "joined",
}

// Request addresses one sheet of a stored workbook. Params holds the operation's
// string parameters, as accepted by ops.Parse.
type Request struct {
	FilePath  string
	SheetName string
	Params    map[string]string
}

type UploadResponse struct {
	Status    string            `json:"status"`
	Filename  string            `json:"filename"`
	FilePath  string            `json:"file_path"`
	Sheets    []string          `json:"sheets"`
	Rows      int               `json:"rows"`
	Columns   []string          `json:"columns"`
	DataTypes map[string]string `json:"data_types"`
}

type AnalyzeMetadata struct {
	RowsAnalyzed int       `json:"rows_analyzed"`
	Columns      []string  `json:"columns"`
	Timestamp    time.Time `json:"timestamp"`
	LLMProvider  string    `json:"llm_provider"`
}

type AnalyzeResponse struct {
	Status   string          `json:"status"`
	Query    string          `json:"query"`
	Result   any             `json:"result"`
	Metadata AnalyzeMetadata `json:"metadata"`
}

type MathResponse struct {
	Status        string           `json:"status"`
	Operation     string           `json:"operation"`
	ResultFile    string           `json:"result_file"`
	SampleResults []map[string]any `json:"sample_results"`
}

type AggregateResponse struct {
	Status       string         `json:"status"`
	Aggregations map[string]any `json:"aggregations"`
}

type FilterResponse struct {
	Status        string           `json:"status"`
	Condition     string           `json:"condition"`
	RowsBefore    int              `json:"rows_before"`
	RowsAfter     int              `json:"rows_after"`
	ResultFile    string           `json:"result_file"`
	SampleResults []map[string]any `json:"sample_results"`
}

// PivotResponse reports the pivot shape without the index column, so a 3x2 grid
// of values under one index column is [3, 2].
type PivotResponse struct {
	Status        string           `json:"status"`
	ResultFile    string           `json:"result_file"`
	PivotShape    [2]int           `json:"pivot_shape"`
	SampleResults []map[string]any `json:"sample_results"`
}

type UnpivotResponse struct {
	Status        string           `json:"status"`
	ResultFile    string           `json:"result_file"`
	RowsBefore    int              `json:"rows_before"`
	RowsAfter     int              `json:"rows_after"`
	SampleResults []map[string]any `json:"sample_results"`
}

type DatesResponse struct {
	Status        string           `json:"status"`
	ResultFile    string           `json:"result_file"`
	ColumnsAdded  []string         `json:"columns_added"`
	SampleResults []map[string]any `json:"sample_results"`
}

type JoinResponse struct {
	Status        string           `json:"status"`
	How           string           `json:"how"`
	ResultFile    string           `json:"result_file"`
	RowsLeft      int              `json:"rows_left"`
	RowsRight     int              `json:"rows_right"`
	RowsAfter     int              `json:"rows_after"`
	SampleResults []map[string]any `json:"sample_results"`
}

type Components struct {
	API      string `json:"api"`
	LLM      string `json:"llm"`
	Provider string `json:"provider"`
}

type HealthResponse struct {
	Status     string     `json:"status"`
	Timestamp  time.Time  `json:"timestamp"`
	Components Components `json:"components"`
}

type InfoResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Info describes the running service.
func (s *Service) Info() InfoResponse {
	return InfoResponse{Status: "healthy", Service: "xlengine", Version: s.version}
}

// Health reports whether the API is up and an agent is configured.
func (s *Service) Health(context.Context) HealthResponse {
	llm := "not configured"
	if s.Available() {
		llm = "configured"
	}
	return HealthResponse{
		Status:    "healthy",
		Timestamp: s.now().UTC(),
		Components: Components{
			API:      "operational",
			LLM:      llm,
			Provider: s.agent.Provider(),
		},
	}
}

// Available reports whether the analyze path can reach a provider.
func (s *Service) Available() bool {
	return agent.Available(s.agent)
}

// Upload stores a workbook and describes its first sheet.
func (s *Service) Upload(ctx context.Context, filename string, body io.Reader) (*UploadResponse, error) {
	tr := s.begin(ctx, "upload", filename)
	if strings.TrimSpace(filename) == "" {
		return nil, tr.fail(apperr.Errorf(apperr.InvalidRequest, "upload", "no file provided"))
	}
	if !allowedExtension(filename) {
		return nil, tr.fail(apperr.Errorf(apperr.InvalidRequest, "upload",
			"unsupported file type %q — only %s are accepted", filepath.Ext(filename), strings.Join(AllowedExtensions, ", ")))
	}
	tr.advance(Validated)

	path, err := s.store.SaveUpload(filename, body)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.entry.OutputFile = path

	info, _, err := sheet.Describe(path, "")
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(TableLoaded)
	tr.entry.RowsBefore = info.Rows
	tr.entry.RowsAfter = info.Rows

	resp := &UploadResponse{
		Status:    "success",
		Filename:  filepath.Base(path),
		FilePath:  path,
		Sheets:    info.Sheets,
		Rows:      info.Rows,
		Columns:   info.Columns,
		DataTypes: info.DataTypes,
	}
	tr.advance(ResultSerialized)
	tr.done()
	return resp, nil
}

func allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Analyze asks the agent a natural-language question about a sheet.
func (s *Service) Analyze(ctx context.Context, req Request, query string) (*AnalyzeResponse, error) {
	tr := s.begin(ctx, "analyze", req.FilePath)
	tr.entry.Query = query
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, tr.fail(apperr.Errorf(apperr.InvalidRequest, "analyze", "missing required parameter %q", "file_path"))
	}
	if strings.TrimSpace(query) == "" {
		return nil, tr.fail(apperr.Errorf(apperr.InvalidRequest, "analyze", "missing required parameter %q", "query"))
	}
	tr.advance(Validated)

	t, err := s.load(req.FilePath, req.SheetName)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(TableLoaded)
	tr.entry.RowsBefore = t.NumRows()

	res, err := s.agent.Ask(ctx, t, query)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(Bridged)

	resp := &AnalyzeResponse{
		Status: "success",
		Query:  query,
		Result: res.Output,
		Metadata: AnalyzeMetadata{
			RowsAnalyzed: t.NumRows(),
			Columns:      t.ColumnNames(),
			Timestamp:    s.now().UTC(),
			LLMProvider:  s.agent.Provider(),
		},
	}
	tr.advance(ResultSerialized)
	tr.done()
	return resp, nil
}

// Math adds a column computed from two numeric columns.
func (s *Service) Math(ctx context.Context, req Request) (*MathResponse, error) {
	out, err := s.run(ctx, ops.KindMath, req)
	if err != nil {
		return nil, err
	}
	m := out.op.(ops.Math)
	sample, err := out.result.Table.Select(distinct(m.Left, m.Right, m.Result)...)
	if err != nil {
		return nil, out.tr.fail(apperr.New(apperr.Internal, "math", err))
	}
	resp := &MathResponse{
		Status:        "success",
		Operation:     string(m.Op),
		ResultFile:    out.path,
		SampleResults: s.sample(sample),
	}
	out.tr.done()
	return resp, nil
}

// Aggregate computes summary statistics. Nothing is persisted.
func (s *Service) Aggregate(ctx context.Context, req Request) (*AggregateResponse, error) {
	out, err := s.run(ctx, ops.KindAggregate, req)
	if err != nil {
		return nil, err
	}
	aggs := make(map[string]any, len(out.result.Summary))
	for k, v := range out.result.Summary {
		aggs[k] = table.JSONSafe(v)
	}
	out.tr.done()
	return &AggregateResponse{Status: "success", Aggregations: aggs}, nil
}

// Filter keeps the rows matching a boolean condition.
func (s *Service) Filter(ctx context.Context, req Request) (*FilterResponse, error) {
	out, err := s.run(ctx, ops.KindFilter, req)
	if err != nil {
		return nil, err
	}
	resp := &FilterResponse{
		Status:        "success",
		Condition:     out.op.(ops.Filter).Condition,
		RowsBefore:    out.result.Provenance.RowsBefore,
		RowsAfter:     out.result.Provenance.RowsAfter,
		ResultFile:    out.path,
		SampleResults: s.sample(out.result.Table),
	}
	out.tr.done()
	return resp, nil
}

// Pivot reshapes long data into a grid.
func (s *Service) Pivot(ctx context.Context, req Request) (*PivotResponse, error) {
	out, err := s.run(ctx, ops.KindPivot, req)
	if err != nil {
		return nil, err
	}
	t := out.result.Table
	resp := &PivotResponse{
		Status:        "success",
		ResultFile:    out.path,
		PivotShape:    [2]int{t.NumRows(), max(t.NumCols()-1, 0)},
		SampleResults: s.sample(t),
	}
	out.tr.done()
	return resp, nil
}

// Unpivot melts value columns into variable/value rows.
func (s *Service) Unpivot(ctx context.Context, req Request) (*UnpivotResponse, error) {
	out, err := s.run(ctx, ops.KindUnpivot, req)
	if err != nil {
		return nil, err
	}
	resp := &UnpivotResponse{
		Status:        "success",
		ResultFile:    out.path,
		RowsBefore:    out.result.Provenance.RowsBefore,
		RowsAfter:     out.result.Provenance.RowsAfter,
		SampleResults: s.sample(out.result.Table),
	}
	out.tr.done()
	return resp, nil
}

// Dates splits a date column into year, month, day and day-of-week columns.
func (s *Service) Dates(ctx context.Context, req Request) (*DatesResponse, error) {
	out, err := s.run(ctx, ops.KindDateExtract, req)
	if err != nil {
		return nil, err
	}
	added := out.result.Provenance.Columns
	if len(added) > 0 {
		added = added[1:]
	}
	resp := &DatesResponse{
		Status:        "success",
		ResultFile:    out.path,
		ColumnsAdded:  added,
		SampleResults: s.sample(out.result.Table),
	}
	out.tr.done()
	return resp, nil
}

// Join merges the sheet with a second stored workbook. Params carry "right",
// "on", "how" and optionally "right_sheet".
func (s *Service) Join(ctx context.Context, req Request) (*JoinResponse, error) {
	out, err := s.run(ctx, ops.KindJoin, req)
	if err != nil {
		return nil, err
	}
	j := out.op.(ops.Join)
	how := j.How
	if how == "" {
		how = ops.InnerJoin
	}
	resp := &JoinResponse{
		Status:        "success",
		How:           string(how),
		ResultFile:    out.path,
		RowsLeft:      out.result.Provenance.RowsBefore,
		RowsRight:     j.Right.NumRows(),
		RowsAfter:     out.result.Provenance.RowsAfter,
		SampleResults: s.sample(out.result.Table),
	}
	out.tr.done()
	return resp, nil
}

// outcome is a dispatched operation whose result, if any, is already persisted.
type outcome struct {
	tr     *tracker
	op     ops.Operation
	result *ops.Result
	path   string
}

// run validates, loads, dispatches and persists one operation. The tracker is
// left at ResultSerialized; callers shape the response and call done.
func (s *Service) run(ctx context.Context, kind ops.Kind, req Request) (*outcome, error) {
	tr := s.begin(ctx, string(kind), req.FilePath)
	tr.entry.Query = describeParams(req.Params)
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, tr.fail(apperr.Errorf(apperr.InvalidRequest, string(kind), "missing required parameter %q", "file_path"))
	}
	op, err := ops.Parse(kind, req.Params, ops.LoaderFunc(s.load))
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(Validated)

	t, err := s.load(req.FilePath, req.SheetName)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(TableLoaded)

	res, err := s.dispatcher.Apply(t, op)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(Dispatched)
	tr.entry.RowsBefore = res.Provenance.RowsBefore
	tr.entry.RowsAfter = res.Provenance.RowsAfter

	out := &outcome{tr: tr, op: op, result: res}
	if prefix, ok := outputPrefix[kind]; ok && res.Table != nil {
		path, err := s.store.NewOutput(prefix)
		if err != nil {
			return nil, tr.fail(err)
		}
		if err := sheet.Save(res.Table, path, ""); err != nil {
			return nil, tr.fail(err)
		}
		out.path = path
		tr.entry.OutputFile = path
	}
	tr.advance(ResultSerialized)
	return out, nil
}

// load resolves a stored path and reads one sheet of it.
func (s *Service) load(path, sheetName string) (*table.Table, error) {
	resolved, err := s.store.Resolve(path)
	if err != nil {
		return nil, err
	}
	return sheet.Load(resolved, sheetName)
}

func (s *Service) sample(t *table.Table) []map[string]any {
	return t.Records(s.sampleRows)
}

func distinct(names ...string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// describeParams renders params for the audit log in a stable order.
func describeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}

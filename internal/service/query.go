package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"erpquery/internal/apperrors"
	"erpquery/internal/catalog"
	"erpquery/internal/logger"
	"erpquery/internal/metrics"
	"erpquery/internal/model"
)

// DefaultPageSize is the number of records the fetcher returns per call
const DefaultPageSize = 100

const (
	msgInterpretFailed   = "Failed to interpret query. Please try rephrasing."
	msgAuthorization     = "Authorization Error: Access to this service is not authorized."
	msgAuthorizationHint = "Access to service %s is not authorized for the configured user. Please contact your administrator to request access."
	msgAggregationFailed = "Error in aggregation calculation"
	maxListedEntities    = 5
)

// QueryService runs natural-language queries end to end
type QueryService struct {
	catalog     *catalog.Catalog
	interpreter Interpreter
	fetcher     Fetcher
	sessions    *SessionStore
	resolver    *EntityResolver
	mapper      *FieldMapper
	validator   *ParameterValidator
	queryLog    QueryLogger
	pageSize    int
	printer     *message.Printer
	log         *zap.Logger
	now         func() time.Time
}

// NewQueryService creates a query service over the catalog
func NewQueryService(
	cat *catalog.Catalog,
	interpreter Interpreter,
	fetcher Fetcher,
	sessions *SessionStore,
	log *zap.Logger,
) *QueryService {
	log = logger.OrNop(log)
	return &QueryService{
		catalog:     cat,
		interpreter: interpreter,
		fetcher:     fetcher,
		sessions:    sessions,
		resolver:    NewEntityResolver(cat),
		mapper:      NewFieldMapper(cat),
		validator:   NewParameterValidator(cat),
		pageSize:    DefaultPageSize,
		printer:     message.NewPrinter(language.English),
		log:         log,
		now:         time.Now,
	}
}

// SetQueryLogger enables auditing of processed queries
func (s *QueryService) SetQueryLogger(l QueryLogger) {
	s.queryLog = l
}

// SetPageSize sets the fetch page size used to flag incomplete results
func (s *QueryService) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Sessions returns the session store
func (s *QueryService) Sessions() *SessionStore {
	return s.sessions
}

// Catalog returns the catalog the service resolves against
func (s *QueryService) Catalog() *catalog.Catalog {
	return s.catalog
}

// queryRun carries the per-request state through the pipeline
type queryRun struct {
	sessionKey string
	session    *model.SessionContext
	command    *model.Command
	service    string
	entity     string
	filters    map[string]string
	errorCode  apperrors.ErrorCode
}

// Query interprets req.Query and answers it. Business failures are reported
// in the response with Success=false; the error is only set for invalid requests.
func (s *QueryService) Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "Query parameter is required and must be a non-empty string")
	}

	start := s.now()
	run := &queryRun{sessionKey: req.SessionID}
	if run.sessionKey == "" {
		run.sessionKey = DefaultSessionKey
	}
	run.session = s.sessions.GetOrCreate(run.sessionKey)

	resp := s.dispatch(ctx, req.Query, run)
	resp.SessionID = run.sessionKey

	command := "unknown"
	if run.command != nil {
		command = string(run.command.Kind)
	}
	outcome := "success"
	if !resp.Success {
		outcome = strings.ToLower(string(run.errorCode))
	}
	took := s.now().Sub(start)
	metrics.QueriesTotal.WithLabelValues(command, outcome).Inc()
	metrics.QueryDuration.WithLabelValues(command).Observe(took.Seconds())

	s.log.Info("query processed",
		zap.String("session", run.sessionKey),
		zap.String("command", command),
		zap.String("service", run.service),
		zap.String("entity", run.entity),
		zap.Bool("success", resp.Success),
		zap.Int("records", resp.RecordCount),
		zap.Duration("took", took),
	)

	s.logQuery(ctx, req.Query, run, resp, took)
	return resp, nil
}

func (s *QueryService) dispatch(ctx context.Context, text string, run *queryRun) *model.QueryResponse {
	cmd, err := s.interpreter.Interpret(ctx, text, run.session)
	if err != nil || cmd == nil {
		run.errorCode = apperrors.ErrCodeInterpretation
		s.log.Warn("interpretation failed", zap.String("query", text), zap.Error(err))
		return model.NewFailure(msgInterpretFailed, "Interpretation failure", run.sessionKey)
	}
	run.command = cmd

	switch cmd.Kind {
	case model.CommandSelectService:
		return s.selectService(run)
	case model.CommandClarifyService, model.CommandAggregateData:
		return s.queryEntity(ctx, run)
	}

	run.errorCode = apperrors.ErrCodeInterpretation
	return model.NewFailure(msgInterpretFailed, fmt.Sprintf("Unsupported command %q", cmd.Kind), run.sessionKey)
}

func (s *QueryService) selectService(run *queryRun) *model.QueryResponse {
	name := run.command.ServiceName
	svc, ok := s.catalog.Service(name)
	if !ok {
		run.errorCode = apperrors.ErrCodeResolution
		return model.NewFailure(
			fmt.Sprintf("Service %q is not available. Please check the available services.", name),
			"Service not in whitelist",
			run.sessionKey,
		)
	}
	run.service = svc.Name

	listed := svc.Entities
	if len(listed) > maxListedEntities {
		listed = listed[:maxListedEntities]
	}
	data := make([]model.Record, 0, len(listed))
	for _, e := range listed {
		data = append(data, model.Record{"entityName": e})
	}

	summary := fmt.Sprintf("Selected service %s (%s).", svc.Name, s.catalog.ServiceTitle(svc.Name))
	if len(listed) > 0 {
		summary += " Available entities: " + strings.Join(listed, ", ") + "."
	}

	run.session.LastService = svc.Name
	s.sessions.Save(run.sessionKey, run.session)

	return &model.QueryResponse{
		Success:     true,
		Summary:     summary,
		Data:        data,
		Fields:      []string{"entityName"},
		ServiceName: svc.Name,
		RecordCount: len(data),
	}
}

// fetchOutcome is the result of trying one candidate entity
type fetchOutcome struct {
	candidate model.ResolvedEntity
	filters   map[string]string
	records   []model.Record
	err       error
	missing   *ValidationResult
}

func (s *QueryService) queryEntity(ctx context.Context, run *queryRun) *model.QueryResponse {
	cmd := run.command

	resolution := s.resolver.Resolve(cmd.EntityName)
	best, ok := resolution.Best()
	if !ok {
		run.errorCode = apperrors.ErrCodeResolution
		return model.NewFailure(
			fmt.Sprintf("No services found for %q. Please check the available services.", cmd.EntityName),
			"Resolution failure",
			run.sessionKey,
		)
	}

	candidates := []model.ResolvedEntity{best}
	if resolution.Probing() {
		candidates = s.probeCandidates(resolution.Candidates)
	}

	outcome := s.tryCandidates(ctx, candidates, run.session.ActiveFilters, cmd.Filters, cmd.Operators)
	run.service = outcome.candidate.ServiceName
	run.entity = outcome.candidate.EntityName
	run.filters = outcome.filters

	if outcome.missing != nil {
		run.errorCode = apperrors.ErrCodeParameterValidation
		return s.missingParameters(run, outcome)
	}
	if outcome.err != nil {
		return s.fetchFailure(run, outcome.err)
	}

	var resp *model.QueryResponse
	if cmd.Kind == model.CommandAggregateData {
		resp = s.aggregate(run, outcome.records)
	} else {
		resp = s.listing(run, outcome.records)
	}
	if !resp.Success {
		run.errorCode = apperrors.ErrCodeAggregation
	}

	run.session.LastEntity = outcome.candidate.EntityName
	run.session.LastService = outcome.candidate.ServiceName
	if cmd.Kind == model.CommandAggregateData {
		run.session.LastFields = []string{cmd.AggregationField}
	} else {
		run.session.LastFields = resp.Fields
	}
	// stored under API names, so an alias and its API name never coexist
	run.session.ActiveFilters = outcome.filters
	s.sessions.Save(run.sessionKey, run.session)

	return resp
}

// probeCandidates appends the default probe list to the resolved candidates
func (s *QueryService) probeCandidates(resolved []model.ResolvedEntity) []model.ResolvedEntity {
	seen := make(map[[2]string]bool)
	out := make([]model.ResolvedEntity, 0, len(resolved)+len(s.catalog.ProbeList))
	for _, c := range append(append([]model.ResolvedEntity(nil), resolved...), s.resolver.ProbeList()...) {
		key := [2]string{c.ServiceName, c.EntityName}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// tryCandidates fetches candidates in order until one yields data. A single
// candidate is fetched exactly once.
func (s *QueryService) tryCandidates(ctx context.Context, candidates []model.ResolvedEntity, active, next, ops map[string]string) fetchOutcome {
	var firstEmpty, firstFailure *fetchOutcome

	for _, c := range candidates {
		o := s.fetchCandidate(ctx, c, active, next, ops)
		switch {
		case o.missing == nil && o.err == nil && len(o.records) > 0:
			return o
		case o.missing == nil && o.err == nil:
			if firstEmpty == nil {
				firstEmpty = &o
			}
		default:
			if firstFailure == nil {
				firstFailure = &o
			}
		}
		if len(candidates) > 1 {
			s.log.Debug("probe candidate yielded no data",
				zap.String("service", c.ServiceName),
				zap.String("entity", c.EntityName),
				zap.Error(o.err),
			)
		}
	}

	if firstEmpty != nil {
		return *firstEmpty
	}
	return *firstFailure
}

// fetchCandidate maps the active and the new filters separately before
// overlaying them, so a new value wins even when it names the field by an alias.
func (s *QueryService) fetchCandidate(ctx context.Context, c model.ResolvedEntity, active, next, ops map[string]string) fetchOutcome {
	mappedActive, _ := s.mapper.MapFilters(c.ServiceName, c.EntityName, active, nil)
	mappedNext, mappedOps := s.mapper.MapFilters(c.ServiceName, c.EntityName, next, ops)
	mapped := MergeFilters(mappedActive, mappedNext)
	filters := model.FiltersFromMap(mapped, mappedOps)
	o := fetchOutcome{candidate: c, filters: mapped}

	if s.validator.IsParameterBased(c.ServiceName) {
		if res := s.validator.Validate(c.ServiceName, filters); !res.Valid {
			o.missing = &res
			return o
		}
	}

	// remote calls run to completion even if the client goes away
	o.records, o.err = s.fetcher.Fetch(context.WithoutCancel(ctx), c.ServiceName, c.EntityName, filters)
	return o
}

func (s *QueryService) missingParameters(run *queryRun, o fetchOutcome) *model.QueryResponse {
	svc := o.candidate.ServiceName
	resp := model.NewFailure(
		"This query requires additional parameters. Please provide: "+strings.Join(o.missing.Missing, ", "),
		fmt.Sprintf("Missing mandatory parameters for %s", svc),
		run.sessionKey,
	)
	resp.Entity = o.candidate.EntityName
	resp.ServiceName = svc
	resp.RequiresParameters = true
	resp.MandatoryFilters = s.validator.MandatoryFilters(svc)
	resp.MissingFilters = o.missing.Missing
	resp.ExampleQuery = s.validator.ExampleQuery(svc, o.candidate.EntityName)
	return resp
}

func (s *QueryService) fetchFailure(run *queryRun, err error) *model.QueryResponse {
	run.errorCode = apperrors.CodeOf(err)
	if run.errorCode == apperrors.ErrCodeInternal {
		run.errorCode = apperrors.ErrCodeRemoteFetch
	}

	var resp *model.QueryResponse
	if apperrors.HasCode(err, apperrors.ErrCodeRemoteAuthorization) {
		resp = model.NewFailure(msgAuthorization, fmt.Sprintf(msgAuthorizationHint, run.service), run.sessionKey)
	} else {
		resp = model.NewFailure(
			fmt.Sprintf("Error retrieving %s data: %s", run.entity, remoteMessage(err)),
			remoteMessage(err),
			run.sessionKey,
		)
	}
	resp.Entity = run.entity
	resp.ServiceName = run.service

	s.log.Warn("remote fetch failed",
		zap.String("service", run.service),
		zap.String("entity", run.entity),
		zap.String("code", string(run.errorCode)),
		zap.Error(err),
	)
	return resp
}

// remoteMessage prefers the message of the remote service over the wrapped chain
func remoteMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Details
		}
		return appErr.Message
	}
	return err.Error()
}

func (s *QueryService) listing(run *queryRun, records []model.Record) *model.QueryResponse {
	fields := model.FieldNames(records)
	resp := &model.QueryResponse{
		Success:     true,
		Data:        records,
		Fields:      fields,
		Entity:      run.entity,
		ServiceName: run.service,
		RecordCount: len(records),
	}
	if resp.Data == nil {
		resp.Data = []model.Record{}
	}

	if len(records) == 0 {
		resp.Summary = fmt.Sprintf("No %s records found matching your criteria.", run.entity)
		return resp
	}

	resp.Summary = fmt.Sprintf("Found %d %s record(s)", len(records), run.entity)
	if len(run.filters) > 0 {
		parts := make([]string, 0, len(run.filters))
		for _, k := range sortedKeys(run.filters) {
			parts = append(parts, k+": "+run.filters[k])
		}
		resp.Summary += " matching " + strings.Join(parts, ", ")
	}
	resp.Summary += "."
	s.flagIncomplete(resp, len(records))
	return resp
}

func (s *QueryService) aggregate(run *queryRun, records []model.Record) *model.QueryResponse {
	cmd := run.command

	field, mapped := s.mapper.Lookup(run.service, run.entity, cmd.AggregationField)
	if !mapped && s.mapper.IsAmountField(run.service, run.entity, cmd.AggregationField) {
		if primary, ok := s.mapper.PrimaryAmountField(run.service, run.entity); ok {
			field = primary
		}
	}
	resolved, found := ResolveAggregationField(records, field)

	value, err := Aggregate(AggregationRequest{
		Records:   records,
		Field:     resolved,
		Type:      cmd.AggregationType,
		Precision: DefaultPrecision,
	})
	if err != nil {
		s.log.Error("aggregation failed", zap.String("field", resolved), zap.Error(err))
		resp := model.NewFailure(
			fmt.Sprintf("%s: %v", msgAggregationFailed, err),
			msgAggregationFailed,
			run.sessionKey,
		)
		resp.Data = []model.Record{{string(cmd.AggregationType): msgAggregationFailed, "recordCount": len(records)}}
		resp.Fields = []string{string(cmd.AggregationType), "recordCount"}
		resp.Entity = run.entity
		resp.ServiceName = run.service
		return resp
	}

	label := resolved
	if label == "" {
		label = "*"
	}
	summary := fmt.Sprintf("%s(%s) for %s: %s (from %d records)",
		strings.ToUpper(string(cmd.AggregationType)), label, run.entity,
		s.formatNumber(cmd.AggregationType, value), len(records))
	if !found && len(records) > 0 && cmd.AggregationType != model.AggregationCount {
		summary += fmt.Sprintf(" - field %s was not found in the data, its values were counted as 0", resolved)
	}

	resp := &model.QueryResponse{
		Success:     true,
		Summary:     summary,
		Data:        []model.Record{{string(cmd.AggregationType): value, "recordCount": len(records)}},
		Fields:      []string{string(cmd.AggregationType), "recordCount"},
		Entity:      run.entity,
		ServiceName: run.service,
		RecordCount: 1,
	}
	s.flagIncomplete(resp, len(records))
	return resp
}

func (s *QueryService) formatNumber(t model.AggregationType, v float64) string {
	if t == model.AggregationCount {
		return s.printer.Sprintf("%d", int64(v))
	}
	return s.printer.Sprintf("%.2f", v)
}

func (s *QueryService) flagIncomplete(resp *model.QueryResponse, fetched int) {
	if fetched == s.pageSize {
		resp.Summary += fmt.Sprintf(" - possibly incomplete, limited to the first %d records", s.pageSize)
		resp.Incomplete = true
	}
}

// logQuery writes the audit entry without blocking the response
func (s *QueryService) logQuery(ctx context.Context, text string, run *queryRun, resp *model.QueryResponse, took time.Duration) {
	if s.queryLog == nil {
		return
	}

	entry := &model.QueryLogEntry{
		ID:             uuid.NewString(),
		SessionID:      run.sessionKey,
		Query:          text,
		ServiceName:    run.service,
		EntityName:     run.entity,
		Filters:        model.JSONMapFromStrings(run.filters),
		Success:        resp.Success,
		ErrorCode:      string(run.errorCode),
		RecordCount:    resp.RecordCount,
		ResponseTimeMs: int(took.Milliseconds()),
		CreatedAt:      s.now(),
	}
	if run.command != nil {
		entry.Command = string(run.command.Kind)
	}

	go func() {
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.queryLog.LogQuery(logCtx, entry); err != nil {
			s.log.Warn("failed to write query log", zap.Error(err))
		}
	}()
}

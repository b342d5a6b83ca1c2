package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"erpquery/internal/apperrors"
	"erpquery/internal/cache"
	"erpquery/internal/catalog"
	"erpquery/internal/config"
	"erpquery/internal/logger"
	"erpquery/internal/metrics"
	"erpquery/internal/model"
	"erpquery/internal/utils"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ODataClient reads entity sets from the ERP gateway
type ODataClient struct {
	cfg        config.ERPConfig
	catalog    *catalog.Catalog
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	log        *zap.Logger
}

// NewODataClient creates a client for the configured gateway. c may be nil.
func NewODataClient(cfg config.ERPConfig, cat *catalog.Catalog, c cache.Cache, cacheTTL time.Duration, log *zap.Logger) *ODataClient {
	if c == nil {
		c = cache.Nop{}
	}
	log = logger.OrNop(log)
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = 50 << 20
	}
	return &ODataClient{
		cfg:      cfg,
		catalog:  cat,
		cache:    c,
		cacheTTL: cacheTTL,
		log:      log,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// odataEnvelope covers both the v2 (d.results) and v4 (value) payload shapes
type odataEnvelope struct {
	D *struct {
		Results []model.Record `json:"results"`
	} `json:"d"`
	Value []model.Record `json:"value"`
}

type odataErrorBody struct {
	Error struct {
		Code    string          `json:"code"`
		Message json.RawMessage `json:"message"`
	} `json:"error"`
}

// Fetch returns at most one page of records of service/entity matching filters
func (c *ODataClient) Fetch(ctx context.Context, service, entity string, filters []model.Filter) ([]model.Record, error) {
	cacheKey := entityCacheKey(service, entity, filters)
	if raw, ok := c.cache.Get(ctx, cacheKey); ok {
		var records []model.Record
		if err := json.Unmarshal(raw, &records); err == nil {
			metrics.ObserveCache("entity", true)
			return records, nil
		}
	}
	metrics.ObserveCache("entity", false)

	reqURL, err := c.BuildURL(service, entity, filters)
	if err != nil {
		metrics.RemoteFetchErrors.WithLabelValues(service, string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}

	start := time.Now()
	records, err := c.get(ctx, reqURL)
	metrics.RemoteFetchDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteFetchErrors.WithLabelValues(service, string(apperrors.CodeOf(err))).Inc()
		c.log.Error("odata request failed",
			zap.String("service", service),
			zap.String("entity", entity),
			zap.String("url", redactURL(reqURL)),
			zap.Error(err),
		)
		return nil, err
	}

	c.log.Info("odata request",
		zap.String("service", service),
		zap.String("entity", entity),
		zap.Int("records", len(records)),
		zap.Duration("took", time.Since(start)),
	)

	if encoded, err := json.Marshal(records); err == nil {
		c.cache.Set(ctx, cacheKey, encoded, c.cacheTTL)
	}
	return records, nil
}

// BuildURL renders the request URL for service/entity. Parameter-based
// services use their configured URL pattern; all others get a $filter.
func (c *ODataClient) BuildURL(service, entity string, filters []model.Filter) (string, error) {
	for _, f := range filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return "", apperrors.New(apperrors.ErrCodeRemoteFetch, fmt.Sprintf("invalid filter field %q", f.Field))
		}
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(c.cfg.PageSize))
	params.Set("$format", "json")
	if c.cfg.Client != "" {
		params.Set("sap-client", c.cfg.Client)
	}

	path := fmt.Sprintf("/sap/opu/odata/sap/%s/%s", url.PathEscape(service), url.PathEscape(entity))

	if p, ok := c.catalog.ParameterAPI(service); ok {
		switch {
		case p.URLPattern == catalog.URLPatternFunctionImport && len(filters) > 0:
			pairs := make([]string, 0, len(filters))
			for _, f := range filters {
				pairs = append(pairs, fmt.Sprintf("%s='%s'", f.Field, url.PathEscape(escapeQuotes(f.Value))))
			}
			target := p.Entity
			if target == "" {
				target = entity
			}
			path = fmt.Sprintf("/sap/opu/odata/sap/%s/%s(%s)/Results",
				url.PathEscape(service), url.PathEscape(target), strings.Join(pairs, ","))
		default:
			for _, f := range filters {
				params.Set(f.Field, f.Value)
			}
		}
	} else if len(filters) > 0 {
		params.Set("$filter", BuildFilter(filters))
	}

	return c.cfg.BaseURL + path + "?" + params.Encode(), nil
}

// BuildFilter renders an OData $filter expression joined with "and"
func BuildFilter(filters []model.Filter) string {
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		v := quoteLiteral(f.Value)
		switch f.Operator {
		case model.OpNe, model.OpGt, model.OpLt, model.OpGe, model.OpLe:
			conds = append(conds, fmt.Sprintf("%s %s %s", f.Field, f.Operator, v))
		case model.OpContains, model.OpStartsWith:
			conds = append(conds, fmt.Sprintf("%s(%s,%s)", f.Operator, f.Field, v))
		default:
			conds = append(conds, fmt.Sprintf("%s eq %s", f.Field, v))
		}
	}
	return strings.Join(conds, " and ")
}

// quoteLiteral renders an OData string literal, doubling embedded quotes
func quoteLiteral(v string) string {
	return "'" + escapeQuotes(v) + "'"
}

func escapeQuotes(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func (c *ODataClient) get(ctx context.Context, reqURL string) ([]model.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeRemoteFetch, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeRemoteFetch, "request failed", err).WithDetails(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeRemoteFetch, "failed to read response", err).WithDetails(err.Error())
	}
	if int64(len(body)) > c.cfg.MaxResponseSize {
		return nil, apperrors.New(apperrors.ErrCodeRemoteFetch, "response too large").
			WithDetails(fmt.Sprintf("response exceeds %d bytes", c.cfg.MaxResponseSize))
	}

	if resp.StatusCode != http.StatusOK {
		code := apperrors.ErrCodeRemoteFetch
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = apperrors.ErrCodeRemoteAuthorization
		}
		msg := extractErrorMessage(body)
		return nil, apperrors.New(code, fmt.Sprintf("OData request failed with status %d", resp.StatusCode)).
			WithDetails(fmt.Sprintf("OData error (%d): %s", resp.StatusCode, msg))
	}

	var env odataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeRemoteFetch, "failed to decode response", err).WithDetails(err.Error())
	}
	switch {
	case env.Value != nil:
		return env.Value, nil
	case env.D != nil && env.D.Results != nil:
		return env.D.Results, nil
	}
	return []model.Record{}, nil
}

// extractErrorMessage reads error.message.value (v2), error.message (v4) or falls back to the raw body
func extractErrorMessage(body []byte) string {
	var e odataErrorBody
	if err := json.Unmarshal(body, &e); err == nil && len(e.Error.Message) > 0 {
		var v2 struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(e.Error.Message, &v2); err == nil && v2.Value != "" {
			return v2.Value
		}
		var s string
		if err := json.Unmarshal(e.Error.Message, &s); err == nil && s != "" {
			return s
		}
	}
	text := strings.TrimSpace(string(body))
	return utils.Truncate(text, 300)
}

func entityCacheKey(service, entity string, filters []model.Filter) string {
	encoded, _ := json.Marshal(filters)
	return fmt.Sprintf("entity:%s:%s:%s", service, entity, encoded)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}

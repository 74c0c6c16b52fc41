package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("row count must be > 0")
	}
	if cfg.Format != FormatCSV && cfg.Format != FormatParquet {
		return nil, fmt.Errorf("format must be %q or %q", FormatCSV, FormatParquet)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed, cfg.CustomerCardinality),
	}, nil
}

// Run generates the dataset, loads it through the ingest endpoint, and
// optionally persists it. One shot: the seeder exits once the table is live.
func (s *Service) Run(ctx context.Context) error {
	orders := make([]Order, 0, s.cfg.Rows)
	for i := 0; i < s.cfg.Rows; i++ {
		orders = append(orders, s.generator.NextOrder())
	}

	var payload []byte
	contentType := ""
	switch s.cfg.Format {
	case FormatParquet:
		encoded, err := EncodeParquet(orders)
		if err != nil {
			return fmt.Errorf("encode parquet payload: %w", err)
		}
		payload = encoded
		contentType = "application/vnd.apache.parquet"
	default:
		payload = EncodeCSV(orders)
		contentType = "text/csv"
	}

	path := "/v1/tables/" + url.PathEscape(s.cfg.TableName) + "/ingest?format=" + s.cfg.Format
	if s.cfg.Replace {
		path += "&replace=true"
	}
	status, body, err := s.doRequest(ctx, http.MethodPost, path, contentType, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ingest request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("ingest request status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var response struct {
		RowCount int64 `json:"row_count"`
		Replaced bool  `json:"replaced"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decode ingest response: %w", err)
	}

	s.log.Info(
		"seeded demo table",
		slog.String("table", s.cfg.TableName),
		slog.String("format", s.cfg.Format),
		slog.Int64("row_count", response.RowCount),
		slog.Bool("replaced", response.Replaced),
		slog.Int("payload_bytes", len(payload)),
	)

	if !s.cfg.SaveAfterLoad {
		return nil
	}

	savePath := "/v1/tables/" + url.PathEscape(s.cfg.TableName) + "/save"
	status, body, err = s.doRequest(ctx, http.MethodPost, savePath, "", nil)
	if err != nil {
		return fmt.Errorf("save request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("save request status %d: %s", status, strings.TrimSpace(string(body)))
	}
	s.log.Info("persisted demo table", slog.String("table", s.cfg.TableName))
	return nil
}

func (s *Service) doRequest(ctx context.Context, method, path, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

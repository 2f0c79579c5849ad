package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/format"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

var exceptionCode = regexp.MustCompile(`^Code:\s*(\d+)`)

// HTTPError is a non-200 answer of the HTTP interface.
type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("clickhouse http %d: %s", e.StatusCode, e.Message)
}

// HTTPSession talks to the ClickHouse HTTP interface directly. Statements
// pass through the query classifier, so reads come back as
// JSONCompactEachRowWithNamesAndTypes unless they name a format themselves.
type HTTPSession struct {
	client  *retryablehttp.Client
	baseURL string
	cfg     *config.Config
}

func NewHTTPSession(cfg *config.Config, log *logger.Logger) (*HTTPSession, error) {
	readTimeout, err := cfg.ReadTimeout()
	if err != nil {
		return nil, err
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Database.Retries
	client.HTTPClient.Timeout = readTimeout
	client.Logger = retryLogger{entry: log.Component("http")}
	client.CheckRetry = retryPolicy
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPSession{
		client:  client,
		baseURL: cfg.GetHTTPURL(),
		cfg:     cfg,
	}, nil
}

func (s *HTTPSession) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.do(ctx, query, args)
	return err
}

func (s *HTTPSession) Select(ctx context.Context, query string, args ...any) (*Result, error) {
	body, err := s.do(ctx, query, args)
	if err != nil {
		return nil, err
	}

	if format.Skip(query) {
		return &Result{Raw: body}, nil
	}
	return DecodeCompact(bytes.NewReader(body))
}

func (s *HTTPSession) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (s *HTTPSession) Release() {
	s.client.HTTPClient.CloseIdleConnections()
}

func (s *HTTPSession) do(ctx context.Context, query string, args []any) ([]byte, error) {
	if len(args) > 0 {
		bound, err := Bind(query, args...)
		if err != nil {
			return nil, err
		}
		query = bound
	}

	params := url.Values{}
	params.Set("database", s.cfg.Database.Database)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"?"+params.Encode(), []byte(format.Apply(query)))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-ClickHouse-User", s.cfg.Database.Username)
	if s.cfg.Database.Password != "" {
		req.Header.Set("X-ClickHouse-Key", s.cfg.Database.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

// retryPolicy retries transport failures and gateway errors. A 500 carries
// a server exception and is final.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusInternalServerError {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func newHTTPError(status int, body []byte) *HTTPError {
	msg := strings.TrimSpace(string(body))
	httpErr := &HTTPError{StatusCode: status, Message: msg}
	if m := exceptionCode.FindStringSubmatch(msg); m != nil {
		httpErr.Code, _ = strconv.Atoi(m[1])
	}
	return httpErr
}

// DecodeCompact reads a JSONCompactEachRowWithNamesAndTypes stream: a names
// row, a types row, then one JSON array per data row.
func DecodeCompact(r io.Reader) (*Result, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	result := &Result{}
	if err := dec.Decode(&result.Names); err != nil {
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to decode column names: %w", err)
	}
	if err := dec.Decode(&result.Types); err != nil {
		return nil, fmt.Errorf("failed to decode column types: %w", err)
	}

	for {
		var row []any
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(result.Rows)+1, err)
		}
		if len(row) != len(result.Names) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", len(result.Rows)+1, len(row), len(result.Names))
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// retryLogger adapts logrus to retryablehttp's leveled logger.
type retryLogger struct {
	entry *logrus.Entry
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Trace(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l retryLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}

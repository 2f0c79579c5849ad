package database_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

type clickhouseStub struct {
	mu      sync.Mutex
	queries []string
	users   []string
}

func (s *clickhouseStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	query := string(body)

	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.users = append(s.users, r.Header.Get("X-ClickHouse-User"))
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(query, "CREATE DATABASE"):
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "Code: 82. DB::Exception: Database shop already exists. (DATABASE_ALREADY_EXISTS)\n")
	case strings.HasPrefix(query, "SELECT name, type"):
		_, _ = io.WriteString(w, `["name","type"]
["String","String"]
["id","UInt64"]
["tags","Array(String)"]
`)
	case strings.Contains(query, "FORMAT CSV"):
		_, _ = io.WriteString(w, "1,2\n")
	default:
		_, _ = io.WriteString(w, "")
	}
}

func newStubSession(t *testing.T) (*database.HTTPSession, *clickhouseStub) {
	t.Helper()

	stub := &clickhouseStub{}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := &config.Config{Database: config.DatabaseConfig{
		Protocol: config.ProtocolHTTPRaw,
		Host:     host,
		Port:     portNum,
		Database: "shop",
		Username: "migrator",
	}}
	cfg.ApplyDefaults()

	session, err := database.NewHTTPSession(cfg, logger.NewDiscard())
	require.NoError(t, err)
	return session, stub
}

func TestHTTPSessionAppliesFormat(t *testing.T) {
	session, stub := newStubSession(t)
	ctx := context.Background()

	result, err := session.Select(ctx, "SELECT name, type FROM system.columns WHERE table = ?", "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "type"}, result.Names)
	assert.Equal(t, []string{"String", "String"}, result.Types)
	assert.Equal(t, []string{"id", "tags"}, result.Column(0))
	assert.Equal(t, "Array(String)", result.String(1, 1))

	raw, err := session.Select(ctx, "SELECT 1, 2 FORMAT CSV")
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(raw.Raw))

	require.NoError(t, session.Exec(ctx, "ALTER TABLE users ADD COLUMN x UInt8"))

	require.Len(t, stub.queries, 3)
	assert.Equal(t, "SELECT name, type FROM system.columns WHERE table = 'users' FORMAT JSONCompactEachRowWithNamesAndTypes", stub.queries[0])
	assert.Equal(t, "SELECT 1, 2 FORMAT CSV", stub.queries[1])
	assert.Equal(t, "ALTER TABLE users ADD COLUMN x UInt8", stub.queries[2])
	assert.Equal(t, "migrator", stub.users[0])
}

func TestHTTPSessionSurfacesExceptions(t *testing.T) {
	session, stub := newStubSession(t)

	err := session.Exec(context.Background(), "CREATE DATABASE `shop`")
	require.Error(t, err)

	var httpErr *database.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 82, httpErr.Code)
	assert.True(t, database.IsAlreadyExists(err))
	assert.Len(t, stub.queries, 1, "server exceptions are not retried")
}

func TestDecodeCompactEmptyBody(t *testing.T) {
	result, err := database.DecodeCompact(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, result.Rows)

	_, err = database.DecodeCompact(strings.NewReader("[\"a\"]\n[\"UInt8\"]\n[1,2]\n"))
	assert.Error(t, err)
}

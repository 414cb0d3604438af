package coremain

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/pmkol/quickdns/mlog"
	"github.com/pmkol/quickdns/pkg/data_provider"
	"github.com/pmkol/quickdns/pkg/trie"
)

func writeFile(t *testing.T, name, s string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(s), 0644))
	return name
}

func Test_loadConfig(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, filepath.Join(dir, "config.yaml"), `
log:
  level: debug
resolver:
  cache_size: 16
  default_ttl: "60"
  cleanup_interval: 0
records:
  - name: a.com
    addr: 1.1.1.1
api:
  http: 127.0.0.1:0
`)

	cfg, used, err := loadConfig(f)
	require.NoError(t, err)
	assert.Equal(t, f, used)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 16, cfg.Resolver.CacheSize)
	assert.Equal(t, 60, cfg.Resolver.DefaultTTL)
	require.NotNil(t, cfg.Resolver.CleanupInterval)
	assert.Equal(t, 0, *cfg.Resolver.CleanupInterval)
	assert.Equal(t, []trie.Record{{Name: "a.com", Addr: "1.1.1.1"}}, cfg.Records)

	cfg.Resolver.Init()
	assert.Equal(t, 5, cfg.Resolver.ShutdownTimeout)
	assert.Equal(t, time.Duration(0), cfg.Resolver.cleanupInterval(), "explicit zero disables the sweep")

	f = writeFile(t, filepath.Join(dir, "unknown.yaml"), "resolver:\n  cache_sizee: 1\n")
	_, _, err = loadConfig(f)
	assert.Error(t, err)

	_, _, err = loadConfig(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestResolverConfig_Init(t *testing.T) {
	c := new(ResolverConfig)
	c.Init()
	assert.Equal(t, defaultCacheSize, c.CacheSize)
	assert.Equal(t, defaultTTL, c.DefaultTTL)
	assert.Equal(t, defaultShutdownTimeout, c.ShutdownTimeout)
	assert.Equal(t, time.Duration(defaultCleanupInterval)*time.Second, c.cleanupInterval())
}

func Test_mergeInclude(t *testing.T) {
	dir := t.TempDir()
	sub := writeFile(t, filepath.Join(dir, "sub.yaml"), `
records:
  - {name: sub.com, addr: 2.2.2.2}
data_providers:
  - {tag: hosts, file: hosts.yaml}
`)
	mainCfg := writeFile(t, filepath.Join(dir, "main.yaml"), "include: ["+sub+"]\nrecords:\n  - {name: main.com, addr: 1.1.1.1}\n")

	cfg, used, err := loadConfig(mainCfg)
	require.NoError(t, err)
	require.NoError(t, mergeInclude(cfg, 0, []string{used}))
	assert.Equal(t, []trie.Record{
		{Name: "sub.com", Addr: "2.2.2.2"},
		{Name: "main.com", Addr: "1.1.1.1"},
	}, cfg.Records)
	require.Len(t, cfg.DataProviders, 1)
	assert.Equal(t, "hosts", cfg.DataProviders[0].Tag)

	loop := filepath.Join(dir, "loop.yaml")
	writeFile(t, loop, "include: ["+loop+"]\n")
	cfg, used, err = loadConfig(loop)
	require.NoError(t, err)
	assert.ErrorContains(t, mergeInclude(cfg, 0, []string{used}), "maximum include depth")
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestQuickDNS(t *testing.T) {
	dir := t.TempDir()
	hosts := writeFile(t, filepath.Join(dir, "hosts.yaml"), "- {name: b.com, addr: 2.2.2.2}\n")

	cfg := &Config{
		Resolver: ResolverConfig{CacheSize: 8},
		Records:  []trie.Record{{Name: "A.com", Addr: "1.1.1.1"}},
		DataProviders: []data_provider.DataProviderConfig{
			{Tag: "hosts", File: hosts},
		},
	}
	m, err := NewQuickDNS(cfg)
	require.NoError(t, err)

	r := m.GetResolver()
	assert.Equal(t, 2, r.DomainCount())
	addr, ok := r.Resolve("a.com")
	require.True(t, ok)
	assert.Equal(t, "1.1.1.1", addr)
	assert.NotNil(t, m.GetDataProvider("hosts"))

	mux := m.GetHTTPAPIMux()
	w := get(t, mux, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2 domains")

	w = get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quickdns_resolver_queries_total 1")
	assert.Contains(t, w.Body.String(), "quickdns_resolver_domains 2")
	assert.Contains(t, w.Body.String(), "go_goroutines")

	m.Close()
	require.NoError(t, m.Wait())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/health").Code)
}

func TestQuickDNS_InvalidConfig(t *testing.T) {
	_, err := NewQuickDNS(&Config{Records: []trie.Record{{Name: "a.com", Addr: "1.1.1"}}})
	assert.Error(t, err)

	hosts := writeFile(t, filepath.Join(t.TempDir(), "hosts.yaml"), "[]\n")
	_, err = NewQuickDNS(&Config{DataProviders: []data_provider.DataProviderConfig{
		{Tag: "x", File: hosts},
		{Tag: "x", File: hosts},
	}})
	assert.ErrorContains(t, err, "duplicated provider tag")
}

func TestQuickDNS_SharedRecords(t *testing.T) {
	dir := t.TempDir()
	hosts := writeFile(t, filepath.Join(dir, "hosts.yaml"), "- {name: a.com, addr: 2.2.2.2}\n- {name: b.com, addr: 3.3.3.3}\n")
	extra := writeFile(t, filepath.Join(dir, "extra.yaml"), "- {name: b.com, addr: 3.3.3.3}\n")

	m, err := NewQuickDNS(&Config{
		Log:     mlog.LogConfig{Level: "debug"},
		Records: []trie.Record{{Name: "a.com", Addr: "1.1.1.1"}},
		DataProviders: []data_provider.DataProviderConfig{
			{Tag: "hosts", File: hosts},
			{Tag: "extra", File: extra},
		},
	})
	require.NoError(t, err)
	defer func() {
		m.Close()
		require.NoError(t, m.Wait())
	}()
	t.Cleanup(func() { mlog.SetLevel(zapcore.InfoLevel) })
	assert.True(t, mlog.L().Core().Enabled(zapcore.DebugLevel), "global logger follows log.level")

	writeFile(t, hosts, "[]\n")
	require.NoError(t, m.GetDataProvider("hosts").Reload())

	r := m.GetResolver()
	addr, ok := r.Resolve("a.com")
	require.True(t, ok, "inline record outlives the file")
	assert.Equal(t, "1.1.1.1", addr)
	assert.True(t, r.ContainsDomain("b.com"), "extra.yaml still lists it")
}

func TestServerService_StopWaitsForShutdown(t *testing.T) {
	dir := t.TempDir()
	hosts := writeFile(t, filepath.Join(dir, "hosts.yaml"), "- {name: a.com, addr: 1.1.1.1}\n")
	cfgFile := writeFile(t, filepath.Join(dir, "config.yaml"), "data_providers:\n  - {tag: hosts, file: "+hosts+", auto_reload: true}\n")

	ss := &serverService{f: &serverFlags{c: cfgFile}}
	require.NoError(t, ss.Start(nil))
	require.NotNil(t, ss.m)
	assert.True(t, ss.m.GetResolver().ContainsDomain("a.com"))

	require.NoError(t, ss.Stop(nil))
	select {
	case <-ss.done:
	default:
		t.Fatal("Stop returned before quickdns was shut down")
	}
	select {
	case <-ss.m.GetSafeClose().ReceiveCloseSignal():
	default:
		t.Fatal("quickdns was not closed")
	}

	assert.NoError(t, (&serverService{}).Stop(nil), "stop without start")
}

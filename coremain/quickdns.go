package coremain

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pmkol/quickdns/mlog"
	"github.com/pmkol/quickdns/pkg/data_provider"
	"github.com/pmkol/quickdns/pkg/resolver"
	"github.com/pmkol/quickdns/pkg/safe_close"
)

type QuickDNS struct {
	logger *zap.Logger

	resolver  *resolver.Resolver
	providers map[string]*data_provider.DataProvider

	httpAPIMux *http.ServeMux
	metricsReg *prometheus.Registry

	sc *safe_close.SafeClose
}

// NewQuickDNS builds the resolver from cfg, loads its records and starts
// the api http server if one is configured. Call Wait to block until it
// is closed.
func NewQuickDNS(cfg *Config) (*QuickDNS, error) {
	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	// The global logger follows the configured level. NewLogger has
	// already accepted it.
	if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		mlog.SetLevel(lvl)
	}

	cfg.Resolver.Init()
	r, err := resolver.New(resolver.Opts{
		CacheSize:       cfg.Resolver.CacheSize,
		DefaultTTL:      time.Duration(cfg.Resolver.DefaultTTL) * time.Second,
		CleanupInterval: cfg.Resolver.cleanupInterval(),
		ShutdownTimeout: time.Duration(cfg.Resolver.ShutdownTimeout) * time.Second,
		Logger:          lg.Named("resolver"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init resolver, %w", err)
	}

	m := &QuickDNS{
		logger:     lg,
		resolver:   r,
		providers:  make(map[string]*data_provider.DataProvider),
		httpAPIMux: http.NewServeMux(),
		metricsReg: newMetricsReg(),
		sc:         safe_close.NewSafeClose(),
	}
	if err := m.init(cfg); err != nil {
		m.shutdown()
		return nil, err
	}

	// Start http api server
	if httpAddr := cfg.API.HTTP; len(httpAddr) > 0 {
		httpServer := &http.Server{
			Addr:    httpAddr,
			Handler: m.httpAPIMux,
		}
		m.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			errChan := make(chan error, 1)
			go func() {
				m.logger.Info("starting api http server", zap.String("addr", httpAddr))
				errChan <- httpServer.ListenAndServe()
			}()
			select {
			case err := <-errChan:
				m.sc.SendCloseSignal(err)
			case <-closeSignal:
				httpServer.Close()
			}
		})
	}

	m.logger.Info("quickdns started",
		zap.Int("domains", r.DomainCount()),
		zap.Int("cache_size", cfg.Resolver.CacheSize),
		zap.Int("data_providers", len(m.providers)),
	)
	return m, nil
}

func (m *QuickDNS) init(cfg *Config) error {
	if err := m.GetMetricsReg().Register(m.resolver.Collector()); err != nil {
		return fmt.Errorf("failed to register resolver metrics, %w", err)
	}

	m.httpAPIMux.Handle("/metrics", promhttp.HandlerFor(m.metricsReg, promhttp.HandlerOpts{}))
	m.httpAPIMux.HandleFunc("/debug/pprof/", pprof.Index)
	m.httpAPIMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	m.httpAPIMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	m.httpAPIMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	m.httpAPIMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	m.httpAPIMux.HandleFunc("/health", m.health)

	sink := data_provider.NewSharedSink(m.resolver)
	inline := sink.Source()
	for i, rc := range cfg.Records {
		if err := inline.AddDomain(rc.Name, rc.Addr); err != nil {
			return fmt.Errorf("invalid record #%d, %w", i, err)
		}
	}

	// Init data providers
	dupTag := make(map[string]struct{})
	for i, dpc := range cfg.DataProviders {
		tag := dpc.Tag
		if len(tag) == 0 {
			tag = fmt.Sprintf("#%d", i)
		}
		if _, ok := dupTag[tag]; ok {
			return fmt.Errorf("duplicated provider tag %s", tag)
		}
		dupTag[tag] = struct{}{}

		dp, err := data_provider.NewDataProvider(m.logger.Named(tag), dpc, sink.Source())
		if err != nil {
			return fmt.Errorf("failed to init data provider %s, %w", tag, err)
		}
		m.providers[tag] = dp
	}
	return nil
}

func (m *QuickDNS) health(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-m.sc.ReceiveCloseSignal():
		http.Error(w, "closing", http.StatusServiceUnavailable)
	default:
		fmt.Fprintf(w, "ok, %d domains\n", m.resolver.DomainCount())
	}
}

// Close asks m to exit. Wait returns after that.
func (m *QuickDNS) Close() {
	m.sc.SendCloseSignal(nil)
}

// Wait blocks until m is closed, then stops its data providers and the
// resolver. It returns the error that caused the close, if any.
func (m *QuickDNS) Wait() error {
	<-m.sc.ReceiveCloseSignal()
	m.sc.Done()
	m.sc.CloseWait()
	shutdownErr := m.shutdown()
	return errors.Join(m.sc.Err(), shutdownErr)
}

func (m *QuickDNS) shutdown() error {
	var errs []error
	for tag, dp := range m.providers {
		if err := dp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close data provider %s, %w", tag, err))
		}
	}
	if err := m.resolver.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *QuickDNS) GetResolver() *resolver.Resolver {
	return m.resolver
}

func (m *QuickDNS) GetDataProvider(tag string) *data_provider.DataProvider {
	return m.providers[tag]
}

func (m *QuickDNS) GetSafeClose() *safe_close.SafeClose {
	return m.sc
}

func (m *QuickDNS) GetMetricsReg() prometheus.Registerer {
	return prometheus.WrapRegistererWithPrefix("quickdns_", m.metricsReg)
}

func (m *QuickDNS) GetHTTPAPIMux() *http.ServeMux {
	return m.httpAPIMux
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// Package data_provider loads name records from YAML files and keeps a
// record sink in sync with them.
//
// A record file is a YAML list:
//
//	- name: example.com
//	  addr: 1.2.3.4
package data_provider

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pmkol/quickdns/pkg/resolver"
	"github.com/pmkol/quickdns/pkg/safe_close"
	"github.com/pmkol/quickdns/pkg/trie"
)

const reloadDelay = time.Millisecond * 200

var nopLogger = zap.NewNop()

type DataProviderConfig struct {
	Tag        string `yaml:"tag"`
	File       string `yaml:"file"`
	AutoReload bool   `yaml:"auto_reload"`
}

// RecordSink receives the records of a provider. *resolver.Resolver
// implements it. Use a SharedSink when several sources write the same
// resolver.
type RecordSink interface {
	AddDomain(name, addr string) error
	RemoveDomain(name string) bool
}

type DataProvider struct {
	logger *zap.Logger
	file   string
	sink   RecordSink

	mu     sync.Mutex
	loaded map[string]struct{} // normalized names applied by the last load

	watcher *fsnotify.Watcher
	sc      *safe_close.SafeClose
}

// NewDataProvider loads cfg.File into sink. If cfg.AutoReload is set, the
// file is watched and reloaded on change until Close is called.
func NewDataProvider(lg *zap.Logger, cfg DataProviderConfig, sink RecordSink) (*DataProvider, error) {
	if len(cfg.File) == 0 {
		return nil, errors.New("missing file")
	}
	if lg == nil {
		lg = nopLogger
	}
	file, err := filepath.Abs(cfg.File)
	if err != nil {
		return nil, err
	}

	p := &DataProvider{
		logger: lg,
		file:   file,
		sink:   sink,
		loaded: make(map[string]struct{}),
		sc:     safe_close.NewSafeClose(),
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}

	if cfg.AutoReload {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to init file watcher, %w", err)
		}
		// Editors often replace the file, so watch its directory.
		if err := w.Add(filepath.Dir(file)); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s, %w", file, err)
		}
		p.watcher = w
		p.sc.Attach(p.watch)
	}
	return p, nil
}

// LoadRecords parses and validates a record file.
func LoadRecords(b []byte) ([]trie.Record, error) {
	var rs []trie.Record
	if err := yaml.Unmarshal(b, &rs); err != nil {
		return nil, fmt.Errorf("invalid record file, %w", err)
	}
	for i, r := range rs {
		if err := resolver.ValidateName(r.Name); err != nil {
			return nil, fmt.Errorf("record #%d: %w", i, err)
		}
		if err := resolver.ValidateAddr(strings.TrimSpace(r.Addr)); err != nil {
			return nil, fmt.Errorf("record #%d %s: %w", i, r.Name, err)
		}
	}
	return rs, nil
}

// Reload reads the file again. Records are added or updated, and names
// loaded previously but gone from the file are removed from the sink.
// On error the sink is left untouched.
func (p *DataProvider) Reload() error {
	b, err := os.ReadFile(p.file)
	if err != nil {
		return fmt.Errorf("failed to read %s, %w", p.file, err)
	}
	rs, err := LoadRecords(b)
	if err != nil {
		return fmt.Errorf("failed to load %s, %w", p.file, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if err := p.sink.AddDomain(r.Name, r.Addr); err != nil {
			return err // validated above, unreachable
		}
		next[trie.Normalize(r.Name)] = struct{}{}
	}
	var removed int
	for name := range p.loaded {
		if _, ok := next[name]; !ok {
			p.sink.RemoveDomain(name)
			removed++
		}
	}
	p.loaded = next

	p.logger.Info("records loaded", zap.String("file", p.file), zap.Int("records", len(rs)), zap.Int("removed", removed))
	return nil
}

func (p *DataProvider) watch(done func(), closeSignal <-chan struct{}) {
	defer done()

	var reload <-chan time.Time
	for {
		select {
		case <-closeSignal:
			return
		case e, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != p.file {
				continue
			}
			if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Rename) {
				reload = time.After(reloadDelay)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("file watcher error", zap.String("file", p.file), zap.Error(err))
		case <-reload:
			reload = nil
			if err := p.Reload(); err != nil {
				p.logger.Warn("failed to reload records", zap.Error(err))
			}
		}
	}
}

// Close stops watching the file. Loaded records stay in the sink.
func (p *DataProvider) Close() error {
	p.sc.SendCloseSignal(nil)
	var err error
	if p.watcher != nil {
		err = p.watcher.Close()
	}
	p.sc.Done()
	p.sc.CloseWait()
	return err
}

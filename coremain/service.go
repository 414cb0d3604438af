package coremain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmkol/quickdns/mlog"
)

var (
	svcCfg = &service.Config{
		Name:        "quickdns",
		DisplayName: "quickdns",
		Description: "A local name to address resolver with an LRU cache.",
	}
	svc service.Service
)

type serverService struct {
	f *serverFlags
	m *QuickDNS

	stopping atomic.Bool
	done     chan struct{} // closed once m.Wait returned
	waitErr  error
}

func (ss *serverService) Start(s service.Service) error {
	mlog.L().Info("starting service")
	m, err := startQuickDNS(ss.f)
	if err != nil {
		return err
	}
	ss.m = m
	ss.done = make(chan struct{})
	go func() {
		err := m.Wait()
		ss.waitErr = err
		close(ss.done)
		if err != nil && !ss.stopping.Load() {
			mlog.L().Error("quickdns exited", zap.Error(err))
			os.Exit(1)
		}
	}()
	return nil
}

// Stop returns after the data providers and the resolver are shut down.
func (ss *serverService) Stop(s service.Service) error {
	mlog.L().Info("service is shutting down")
	if ss.m == nil {
		return nil
	}
	ss.stopping.Store(true)
	ss.m.Close()
	<-ss.done
	return ss.waitErr
}

// initService is the PersistentPreRunE of the service sub commands.
func initService(_ *cobra.Command, _ []string) error {
	s, err := service.New(&serverService{}, svcCfg)
	if err != nil {
		return fmt.Errorf("cannot init service, %w", err)
	}
	svc = s
	return nil
}

func newSvcInstallCmd() *cobra.Command {
	sf := new(serverFlags)
	c := &cobra.Command{
		Use:   "install [-d working_dir] [-c config_file]",
		Short: "Install quickdns as a system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sf.dir) == 0 {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get current working directory, %w", err)
				}
				sf.dir = wd
			}
			dir, err := filepath.Abs(sf.dir)
			if err != nil {
				return fmt.Errorf("failed to resolve working directory, %w", err)
			}
			svcCfg.Arguments = []string{"start", "--as-service", "-d", dir}
			if len(sf.c) > 0 {
				svcCfg.Arguments = append(svcCfg.Arguments, "-c", sf.c)
			}

			// svc was built before the arguments were known.
			s, err := service.New(&serverService{}, svcCfg)
			if err != nil {
				return fmt.Errorf("cannot init service, %w", err)
			}
			return s.Install()
		},
		SilenceUsage: true,
	}
	c.Flags().StringVarP(&sf.dir, "dir", "d", "", "working dir")
	c.Flags().StringVarP(&sf.c, "config", "c", "", "config file")
	return c
}

func newSvcUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall quickdns from system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Uninstall()
		},
		SilenceUsage: true,
	}
}

func newSvcStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start quickdns system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Start()
		},
		SilenceUsage: true,
	}
}

func newSvcStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop quickdns system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Stop()
		},
		SilenceUsage: true,
	}
}

func newSvcRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart quickdns system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Restart()
		},
		SilenceUsage: true,
	}
}

func newSvcStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Status of quickdns system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc.Status()
			if err != nil {
				if errors.Is(err, service.ErrNotInstalled) {
					fmt.Println("not installed")
					return nil
				}
				return fmt.Errorf("cannot get service status, %w", err)
			}
			var out string
			switch s {
			case service.StatusRunning:
				out = "running"
			case service.StatusStopped:
				out = "stopped"
			default:
				out = "unknown"
			}
			fmt.Println(out)
			return nil
		},
		SilenceUsage: true,
	}
}

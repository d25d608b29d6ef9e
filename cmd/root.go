package cmd

import (
	"context"
	"fmt"
	"os"

	"svcfwd/pkg/catalog"
	"svcfwd/pkg/config"
	"svcfwd/pkg/logging"
	"svcfwd/pkg/session"
	"svcfwd/pkg/store"
	"svcfwd/pkg/tunnel"
	"svcfwd/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // auth providers for managed clusters
	"k8s.io/client-go/tools/clientcmd"
)

var (
	flagNamespace   string
	flagKubeContext string
	flagConfigPath  string
	flagDebug       bool
)

var rootCmd = &cobra.Command{
	Use:   "svcfwd",
	Short: "Interactive port-forward manager for Kubernetes services",
	Long: `svcfwd lists the services and ports of one namespace and lets you
toggle local port-forward tunnels per port or per service, watching
live status in the terminal.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagNamespace, "namespace", "n", "", "namespace to inspect (default \"default\")")
	rootCmd.PersistentFlags().StringVar(&flagKubeContext, "kube-context", "", "kubeconfig context to use (default: current context)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config file (default ~/.svcfwd/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// Execute runs the root command. Startup failures exit non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfgPath := flagConfigPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if flagNamespace != "" {
		cfg.Namespace = flagNamespace
	}
	if flagKubeContext != "" {
		cfg.KubeContext = flagKubeContext
	}
	if flagDebug {
		cfg.Debug = true
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	closeLog, err := logging.Init(dir, cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.KubeContext}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	// One-shot snapshot; failure here is fatal.
	cat, err := catalog.Fetch(context.Background(), client, cfg.Namespace)
	if err != nil {
		return err
	}
	if len(cat.Services) == 0 {
		// An empty namespace is fine; the table just starts empty.
		logging.Info("cmd", "no services found in namespace %s", cfg.Namespace)
	}

	var prefs session.PortPreferences
	if ps, err := store.Open(store.DefaultPath(dir)); err != nil {
		logging.Warn("cmd", "port preference store unavailable: %v", err)
	} else {
		prefs = ps
		defer ps.Close()
	}

	driver := tunnel.NewKubeDriver(client, restConfig, cfg.BindAddress)
	mgr := session.NewManager(session.Config{
		Catalog:     cat,
		Driver:      driver,
		Prefs:       prefs,
		BindAddress: cfg.BindAddress,
	})
	defer mgr.Shutdown()

	model := ui.NewModel(mgr, cfg.Namespace)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}

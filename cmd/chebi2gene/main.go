// Command chebi2gene serves the compound to gene lookup over HTTP and runs
// one-off reports and searches from the command line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chebi2gene/internal/config"
	"chebi2gene/internal/core"
	"chebi2gene/internal/logging"
	"chebi2gene/internal/observability"
	"chebi2gene/internal/sparql"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// cli runs the root command with args and returns the process exit code.
func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "chebi2gene: %v\n", err)
		return 1
	}
	return 0
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        config.Config
	log        *zap.Logger
	metrics    *observability.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chebi2gene",
		Short:         "Trace ChEBI compounds to Rhea reactions, UniProt proteins and ITAG genes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to YAML config file")
	root.AddCommand(newServeCmd(a), newReportCmd(a), newSearchCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	a.metrics = observability.New()
	return nil
}

// service wires the SPARQL client into the pipeline.
func (a *app) service() *core.Service {
	client := sparql.NewClient(sparql.Options{
		Timeout:          a.cfg.SPARQL.Timeout,
		MaxResponseBytes: a.cfg.SPARQL.MaxResponseBytes,
		UserAgent:        a.cfg.SPARQL.UserAgent,
		Logger:           a.log,
		Recorder:         a.metrics,
	})
	return core.NewService(client, core.OptionsFromConfig(a.cfg, a.log), core.WithMetrics(a.metrics))
}

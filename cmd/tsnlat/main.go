// Command tsnlat reads a scenario description, computes the latency bounds of its
// flows under the requested formulas, and writes the results out.
//
// Every flag may also be given in the environment with the TSNLAT_ prefix
// (TSNLAT_CSV=bounds.csv), in a .env file of the working directory, or in the
// configuration file named by --config.
package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/iti/tsnlat"
	"github.com/iti/tsnlat/report"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tsnlat: %v\n", err)
		os.Exit(1)
	}
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

// readConfig merges flags, environment, and the optional configuration file
func readConfig() (*viper.Viper, error) {
	flag.String("config", "", "configuration file (yaml, json, or toml)")
	flag.String("scenario", "", "scenario description file (.yaml, .yml, or .json)")
	flag.StringSlice("formulas", nil, "formulas to run when a study names none (default all)")
	flag.Int("workers", 0, "analyses run at once (default number of CPUs)")
	flag.String("run", "", "name of this run in the result store (default the current time)")
	flag.String("csv", "", "csv file the bounds are appended to")
	flag.String("chart", "", "html file the bound chart is written to")
	flag.String("db", "", "sqlite database the outcomes are stored in")
	flag.String("metrics", "", "file the metrics are written to, in prometheus text format")
	flag.String("trace", "", "file the per-hop trace is written to (.yaml or .json)")
	flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	v := viper.New()
	v.SetEnvPrefix("TSNLAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}

	if cfgFile := v.GetString("config"); len(cfgFile) > 0 {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading configuration %s", cfgFile)
		}
	}
	if len(v.GetString("scenario")) == 0 {
		return nil, errors.New("no scenario given, use --scenario")
	}
	return v, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run() error {
	if err := loadDotEnv(); err != nil {
		return errors.Wrap(err, "loading .env")
	}
	v, err := readConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(v.GetBool("debug"))
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer func() { _ = logger.Sync() }()

	scenarioFile := v.GetString("scenario")
	pathExt := path.Ext(scenarioFile)
	useYAML := pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml"
	sd, err := tsnlat.ReadScenarioDesc(scenarioFile, useYAML, nil)
	if err != nil {
		return err
	}
	logger.Info("scenario read", zap.String("name", sd.Name), zap.Int("flows", len(sd.Flows)),
		zap.Int("studies", len(sd.Studies)))

	studies := sd.Studies
	if len(studies) == 0 {
		studies = []tsnlat.StudyDesc{{Name: sd.Name}}
	}

	now := time.Now()
	runName := v.GetString("run")
	if len(runName) == 0 {
		runName = now.Format(time.RFC3339)
	}

	metrics := report.NewMetrics()
	trace := tsnlat.CreateTraceManager(sd.Name, len(v.GetString("trace")) > 0)

	var store *report.Store
	if dbFile := v.GetString("db"); len(dbFile) > 0 {
		store, err = report.OpenStore(context.Background(), dbFile)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	labels := []string{"Name", "Idle Slope", "Fraction", "Flow Interval as CMI"}
	table := report.CreateTable(labels, nil)
	failures := 0

	for _, study := range studies {
		formulas := study.Formulas
		if len(formulas) == 0 {
			formulas = v.GetStringSlice("formulas")
		}
		for step := 0; step < study.Steps(); step++ {
			stepLabels := study.StepLabels(step)
			nw, err := sd.BuildStudy(study, step)
			if err != nil {
				return errors.Wrapf(err, "study %s step %d", study.Name, step)
			}

			analyzer := tsnlat.CreateAnalyzer(nw,
				tsnlat.WithLogger(logger.With(zap.String("study", study.Name), zap.String("step", stepLabels["Name"]))),
				tsnlat.WithWorkers(v.GetInt("workers")),
				tsnlat.WithTrace(trace),
				tsnlat.WithObserver(metrics))

			outcomes := analyzer.AnalyzeFlows(nil, formulas)
			table.AddOutcomes(outcomes, stepLabels)
			failures += int(analyzer.Failed())

			for _, outcome := range outcomes {
				if outcome.Err != nil {
					fmt.Printf("%-24s %-16s failed: %v\n", outcome.FlowID, outcome.Formula, outcome.Err)
					continue
				}
				fmt.Printf("%-24s %-16s %12.3f us\n", outcome.FlowID, outcome.Formula, outcome.Result.Total*1e6)
			}

			if store != nil {
				runKey := runName + "/" + study.Name + "/" + stepLabels["Name"]
				if err := store.Save(context.Background(), sd.Name, runKey, outcomes, now); err != nil {
					return err
				}
			}
		}
	}

	return writeOutputs(v, sd.Name, table, metrics, trace, failures, logger)
}

func writeOutputs(v *viper.Viper, name string, table *report.Table, metrics *report.Metrics,
	trace *tsnlat.TraceManager, failures int, logger *zap.Logger) error {

	if csvFile := v.GetString("csv"); len(csvFile) > 0 {
		if err := report.WriteCSV(csvFile, table, time.Now()); err != nil {
			return err
		}
		logger.Info("bounds written", zap.String("csv", csvFile))
	}

	if chartFile := v.GetString("chart"); len(chartFile) > 0 {
		f, err := os.Create(chartFile)
		if err != nil {
			return errors.Wrapf(err, "creating %s", chartFile)
		}
		defer f.Close()
		if err := report.RenderChart(f, name, table); err != nil {
			return err
		}
		logger.Info("chart written", zap.String("chart", chartFile))
	}

	if metricsFile := v.GetString("metrics"); len(metricsFile) > 0 {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			return err
		}
	}

	if traceFile := v.GetString("trace"); len(traceFile) > 0 {
		if _, err := trace.WriteToFile(traceFile); err != nil {
			return err
		}
	}

	if failures > 0 {
		return errors.Newf("%d analyses failed", failures)
	}
	return nil
}

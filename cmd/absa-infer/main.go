// absa-infer runs batched sentiment-tuple inference over a data file against a
// fine-tuned checkpoint and an external generation server, appending decoded
// predictions to a results file and, for labeled inputs, printing tuple-level
// precision/recall/F1.
//
// Usage:
//
//	absa-infer -task aste -paradigm extraction \
//	    -input data/aste/laptop14/test.txt \
//	    -checkpoint outputs/aste-laptop14 \
//	    -endpoint http://localhost:8090/generate
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/Toma62299781/Generative-ABSA/absa"
	"github.com/Toma62299781/Generative-ABSA/eval"
	"github.com/Toma62299781/Generative-ABSA/generation"
	"github.com/Toma62299781/Generative-ABSA/inference"
)

// fileConfig mirrors the flags for runs driven by a YAML file. Flags given on
// the command line take precedence.
type fileConfig struct {
	Task            string `yaml:"task"`
	Paradigm        string `yaml:"paradigm"`
	Input           string `yaml:"input"`
	Checkpoint      string `yaml:"checkpoint"`
	Results         string `yaml:"results"`
	Endpoint        string `yaml:"endpoint"`
	BatchSize       int    `yaml:"batch_size"`
	MaxSeqLength    int    `yaml:"max_seq_length"`
	MaxOutputLength int    `yaml:"max_output_length"`
	ScoreWorkers    int    `yaml:"score_workers"`
	Report          string `yaml:"report"`
}

var (
	flagConfig          = flag.String("config", "", "optional YAML file with run settings; explicit flags override it")
	flagTask            = flag.String("task", "", "task: uabsa, aste, tasd or aope")
	flagParadigm        = flag.String("paradigm", "annotation", "target paradigm: annotation or extraction")
	flagInput           = flag.String("input", "", "input data file, one 'sentence####labels' line per example")
	flagCheckpoint      = flag.String("checkpoint", "", "checkpoint directory (hparams.yaml, model.safetensors, tokenizer.model)")
	flagResults         = flag.String("results", "inference_results.txt", "results file the decoded predictions are appended to")
	flagEndpoint        = flag.String("endpoint", "http://localhost:8090/generate", "generation server endpoint")
	flagBatchSize       = flag.Int("batch_size", 0, "examples per generation request (0 = from checkpoint hyperparameters)")
	flagMaxSeqLength    = flag.Int("max_seq_length", 0, "encoded source length (0 = from checkpoint hyperparameters)")
	flagMaxOutputLength = flag.Int("max_output_length", 128, "maximum generated output length")
	flagScoreWorkers    = flag.Int("score_workers", 4, "parallel scoring workers for evaluation")
	flagReport          = flag.String("report", "", "optional Parquet file for the per-example evaluation report")
	flagEncodeCache     = flag.Int("encode_cache_mb", 32, "tokenizer encode cache size in MiB (0 disables)")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Bold(true)
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(); err != nil {
		klog.Errorf("absa-infer: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, reportPath, err := buildConfig()
	if err != nil {
		return err
	}
	client := generation.NewClient(*flagEndpoint)
	runner := inference.New(cfg, client)

	result, err := runner.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%s %d predictions appended to %s\n",
		headerStyle.Render("Done:"), len(result.Predictions), cfg.ResultsPath)

	if result.Report == nil {
		return nil
	}
	printScores(result.Report)
	if reportPath != "" {
		if err := result.Report.WriteParquet(reportPath); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", labelStyle.Render("report"), reportPath)
	}
	return nil
}

// buildConfig merges the optional YAML config file with the command-line
// flags and validates the result.
func buildConfig() (inference.Config, string, error) {
	var fc fileConfig
	if *flagConfig != "" {
		data, err := os.ReadFile(*flagConfig)
		if err != nil {
			return inference.Config{}, "", errors.Wrapf(err, "failed to read config %q", *flagConfig)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return inference.Config{}, "", errors.Wrapf(err, "failed to parse config %q", *flagConfig)
		}
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	pickStr := func(name string, flagVal *string, fileVal string) string {
		if set[name] || fileVal == "" {
			return *flagVal
		}
		return fileVal
	}
	pickInt := func(name string, flagVal *int, fileVal int) int {
		if set[name] || fileVal == 0 {
			return *flagVal
		}
		return fileVal
	}

	task, err := absa.ParseTask(pickStr("task", flagTask, fc.Task))
	if err != nil {
		return inference.Config{}, "", err
	}
	paradigm, err := absa.ParseParadigm(pickStr("paradigm", flagParadigm, fc.Paradigm))
	if err != nil {
		return inference.Config{}, "", err
	}
	cfg := inference.Config{
		Task:             task,
		Paradigm:         paradigm,
		FilePath:         pickStr("input", flagInput, fc.Input),
		CheckpointDir:    pickStr("checkpoint", flagCheckpoint, fc.Checkpoint),
		ResultsPath:      pickStr("results", flagResults, fc.Results),
		BatchSize:        pickInt("batch_size", flagBatchSize, fc.BatchSize),
		MaxSeqLength:     pickInt("max_seq_length", flagMaxSeqLength, fc.MaxSeqLength),
		MaxOutputLength:  pickInt("max_output_length", flagMaxOutputLength, fc.MaxOutputLength),
		ScoreWorkers:     pickInt("score_workers", flagScoreWorkers, fc.ScoreWorkers),
		EncodeCacheBytes: *flagEncodeCache << 20,
	}
	if cfg.FilePath == "" {
		return inference.Config{}, "", errors.New("missing -input data file")
	}
	if cfg.CheckpointDir == "" {
		return inference.Config{}, "", errors.New("missing -checkpoint directory")
	}
	endpoint := pickStr("endpoint", flagEndpoint, fc.Endpoint)
	*flagEndpoint = endpoint
	return cfg, pickStr("report", flagReport, fc.Report), nil
}

func printScores(report *eval.Report) {
	fmt.Println(headerStyle.Render("Tuple-level scores"))
	row := func(label, value string) {
		fmt.Printf("%s %s\n", labelStyle.Render(label), valueStyle.Render(value))
	}
	row("precision", fmt.Sprintf("%.4f", report.Corpus.Precision))
	row("recall", fmt.Sprintf("%.4f", report.Corpus.Recall))
	row("f1", fmt.Sprintf("%.4f", report.Corpus.F1))
	row("mean f1", fmt.Sprintf("%.4f (sd %.4f over %d examples)",
		report.MeanF1, report.StdDevF1, len(report.PerExample)))
	row("counts", fmt.Sprintf("tp=%d gold=%d pred=%d",
		report.Counts.TP, report.Counts.Gold, report.Counts.Pred))
}

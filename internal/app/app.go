// Package app wires the scan -> extract -> rule-match -> classify ->
// plan -> execute pipeline into the handful of high-level operations
// the CLI calls, constructing every stage from one Config and managing
// the resources (log file, ephemeral index, LLM backend) each run
// needs.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"organizer/internal/artifacts"
	"organizer/internal/classifier"
	"organizer/internal/config"
	"organizer/internal/core"
	"organizer/internal/encryption"
	"organizer/internal/executor"
	"organizer/internal/extractor"
	"organizer/internal/index"
	"organizer/internal/model"
	"organizer/internal/planner"
	"organizer/internal/rules"
	"organizer/internal/scanner"
)

// App is the application layer between the CLI and the pipeline
// packages. It constructs all dependencies from a Config and exposes
// operations that accept raw CLI arguments. The caller must call Close
// when done.
type App struct {
	cfg     *config.Config
	logger  core.Logger
	logFile *os.File
	store   *artifacts.Store
	run     *RunRecord
}

// Options configures New beyond what Config itself carries: the CLI
// command name (for logging), and the global verbosity flags.
type Options struct {
	Command    string
	Parameters string
	Verbosity  LogVerbosity
}

// New constructs a fully wired App from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.Wrap(core.ConfigError, err)
	}

	runID := core.RealClock{}.Now().UTC().Format("20060102T150405Z")

	logger, logFile, err := newLogger(filepath.Join(cfg.OutputDir, "logs"), runID, opts.Verbosity)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	enc, err := buildEncryptor(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, core.Wrap(core.ConfigError, fmt.Errorf("building encryptor: %w", err))
	}

	var mirror artifacts.Mirror
	if cfg.Mirror.Bucket != "" {
		m, err := artifacts.NewS3Mirror(ctx, artifacts.S3MirrorConfig{
			Bucket:          cfg.Mirror.Bucket,
			Prefix:          cfg.Mirror.Prefix,
			Region:          cfg.Mirror.Region,
			Endpoint:        cfg.Mirror.Endpoint,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
		})
		if err != nil {
			logFile.Close()
			return nil, core.Wrap(core.ConfigError, fmt.Errorf("building s3 mirror: %w", err))
		}
		mirror = m
	}

	store, err := artifacts.New(artifacts.Options{
		Root:      cfg.OutputDir,
		Encryptor: enc,
		Mirror:    mirror,
		Logger:    adapter,
	})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating artifact store: %w", err)
	}

	return &App{
		cfg:     cfg,
		logger:  adapter,
		logFile: logFile,
		store:   store,
		run:     NewRunRecord(runID, opts.Command, opts.Parameters),
	}, nil
}

// Close releases the App's resources.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

func buildEncryptor(cfg config.EncryptionConfig) (encryption.Encryptor, error) {
	return encryption.NewFromConfig(encryption.Config{
		Type:           cfg.Type,
		PublicKeyPath:  cfg.PublicKeyPath,
		PrivateKeyPath: cfg.PrivateKeyPath,
	})
}

// ScanStats summarizes one Scan invocation.
type ScanStats struct {
	FilesAccepted int
	FilesSkipped  int
	Errors        int
	TotalBytes    int64
}

// Scan walks root, applying the scanner's exclusion rules, and reports
// aggregate statistics without extracting, classifying, or planning
// anything.
func (a *App) Scan(ctx context.Context, root string) (ScanStats, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return ScanStats{}, core.Wrap(core.ConfigError, fmt.Errorf("resolving scan root: %w", err))
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return ScanStats{}, core.Wrap(core.IoError, fmt.Errorf("scan root %s is not a readable directory", absRoot))
	}

	sc := a.newScanner([]string{absRoot})
	var stats ScanStats
	for res := range sc.Scan(ctx) {
		if res.Err != nil {
			stats.Errors++
			a.logger.Warn("scan error", "path", res.Path, "error", res.Err)
			continue
		}
		stats.FilesAccepted++
		stats.TotalBytes += res.Record.Size
	}
	return stats, nil
}

func (a *App) newScanner(roots []string) *scanner.Scanner {
	return scanner.New(scanner.Options{
		Roots:       roots,
		MinSize:     a.cfg.Scan.MinSize,
		ExtraIgnore: a.cfg.Scan.ExtraIgnore,
		Logger:      a.logger,
	})
}

// PlanResult bundles the generated Plan with its human-readable
// rendering and the rule engine's per-run statistics.
type PlanResult struct {
	Plan     *model.Plan
	Markdown string
	Stats    rules.Stats
}

// PlanOverrides captures the plan subcommand's optional flags.
type PlanOverrides struct {
	Destination   string // overrides cfg.BaseDir when non-empty
	RulesFile     string // overrides cfg.RulesFile when non-empty
	RulesOnly     bool
	CopyMode      bool
	MinConfidence int // -1 means "use cfg.Planner.MinConfidence"
}

// Plan runs stages 1-5 over root and returns the resulting Plan,
// persisting both its machine and human-readable forms via the
// artifact store.
func (a *App) Plan(ctx context.Context, root string, overrides PlanOverrides) (*PlanResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, core.Wrap(core.ConfigError, fmt.Errorf("resolving scan root: %w", err))
	}

	baseRoot := a.cfg.BaseDir
	if overrides.Destination != "" {
		baseRoot = overrides.Destination
	}

	rulesPath := a.cfg.RulesFile
	if overrides.RulesFile != "" {
		rulesPath = overrides.RulesFile
	}
	ruleList, err := rules.Load(rulesPath)
	if err != nil {
		return nil, core.Wrap(core.ConfigError, fmt.Errorf("loading rules: %w", err))
	}
	engine := rules.New(ruleList, rules.DefaultMinRuleConfidence)

	minConfidence := a.cfg.Planner.MinConfidence
	if overrides.MinConfidence >= 0 {
		minConfidence = overrides.MinConfidence
	}

	sc := a.newScanner([]string{absRoot})
	ex := extractor.New()

	var ruleMatched []planner.ClassifiedRecord
	var unmatched []*model.FileRecord

	for res := range sc.Scan(ctx) {
		if res.Err != nil {
			a.logger.Warn("scan error", "path", res.Path, "error", res.Err)
			continue
		}
		record := res.Record
		ex.Extract(record)

		if cls, ok := engine.Classify(record); ok {
			ruleMatched = append(ruleMatched, planner.ClassifiedRecord{Record: record, Classification: cls})
			continue
		}
		unmatched = append(unmatched, record)
	}

	var classified []planner.ClassifiedRecord
	classified = append(classified, ruleMatched...)

	if overrides.RulesOnly || a.cfg.Classifier.Backend == "rules-only" {
		for _, r := range unmatched {
			classified = append(classified, planner.ClassifiedRecord{Record: r, Classification: rulesOnlyFallback(r)})
		}
	} else if len(unmatched) > 0 {
		backend, err := a.buildBackend(ctx)
		if err != nil {
			return nil, core.Wrap(core.BackendUnavailable, err)
		}
		cl := classifier.New(classifier.Options{
			Backend:           backend,
			RequestsPerMinute: a.cfg.Classifier.RequestsPerMinute,
			Concurrency:       a.cfg.Classifier.Concurrency,
			Logger:            a.logger,
		})
		if err := cl.HealthCheck(ctx); err != nil {
			return nil, core.Wrap(core.BackendUnavailable, fmt.Errorf("classifier backend unreachable: %w", err))
		}
		for _, res := range cl.ClassifyBatch(ctx, unmatched) {
			classified = append(classified, planner.ClassifiedRecord{Record: res.Record, Classification: res.Classification})
		}
	}

	idx, err := index.Open()
	if err != nil {
		return nil, fmt.Errorf("opening destination index: %w", err)
	}
	defer idx.Close()

	existing, err := existingDestinations(baseRoot)
	if err != nil {
		a.logger.Warn("seeding destination index", "error", err)
	}
	if err := idx.Seed(ctx, existing); err != nil {
		return nil, fmt.Errorf("seeding destination index: %w", err)
	}

	pl := planner.New(planner.Options{
		BaseRoot:      baseRoot,
		CopyMode:      overrides.CopyMode || a.cfg.Planner.CopyMode,
		MinConfidence: minConfidence,
		Index:         idx,
		IDGen:         core.UUIDGenerator{},
		Logger:        a.logger,
	})

	plan, err := pl.Build(ctx, classified)
	if err != nil {
		return nil, fmt.Errorf("building plan: %w", err)
	}

	stats := engine.Stats()
	markdown := planner.RenderMarkdown(plan, stats)

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	if err := a.store.SavePlan(ctx, plan, "json", data, markdown); err != nil {
		a.logger.Warn("saving plan artifact", "error", err)
	}

	return &PlanResult{Plan: plan, Markdown: markdown, Stats: stats}, nil
}

// Execute loads a persisted plan file and runs stage 6 over it.
func (a *App) Execute(ctx context.Context, planPath string, apply bool) (*model.Manifest, error) {
	data, err := os.ReadFile(planPath)
	if err != nil {
		return nil, core.Wrap(core.ConfigError, fmt.Errorf("reading plan file: %w", err))
	}

	var plan model.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, core.Wrap(core.ConfigError, fmt.Errorf("parsing plan file: %w", err))
	}

	ex := executor.New(executor.Options{
		Apply:  apply,
		Logger: a.logger,
		Sink:   a.store,
	})

	manifest, err := ex.Execute(ctx, &plan)
	if err != nil {
		return nil, fmt.Errorf("executing plan: %w", err)
	}
	return manifest, nil
}

// InfoStatus summarizes the configured backend and key paths for the
// info command.
type InfoStatus struct {
	Backend       string
	Model         string
	OllamaBaseURL string
	BaseDir       string
	OutputDir     string
	RulesFile     string
	MinConfidence int
	Encrypted     bool
	MirrorBucket  string
}

// Info reports the current configuration without contacting any
// backend.
func (a *App) Info() InfoStatus {
	return InfoStatus{
		Backend:       a.cfg.Classifier.Backend,
		Model:         a.cfg.Classifier.Model,
		OllamaBaseURL: a.cfg.Classifier.OllamaBaseURL,
		BaseDir:       a.cfg.BaseDir,
		OutputDir:     a.cfg.OutputDir,
		RulesFile:     a.cfg.RulesFile,
		MinConfidence: a.cfg.Planner.MinConfidence,
		Encrypted:     a.cfg.Encryption.Type != "" && a.cfg.Encryption.Type != "none",
		MirrorBucket:  a.cfg.Mirror.Bucket,
	}
}

func (a *App) buildBackend(ctx context.Context) (classifier.Backend, error) {
	switch a.cfg.Classifier.Backend {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		model := a.cfg.Classifier.Model
		if model == "" {
			model = classifier.DefaultOpenAIModel
		}
		return classifier.NewOpenAIBackend(apiKey, model), nil
	case "gemini":
		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
		}
		model := a.cfg.Classifier.Model
		if model == "" {
			model = classifier.DefaultGeminiModel
		}
		return classifier.NewGeminiBackend(ctx, apiKey, model)
	case "local", "":
		baseURL := a.cfg.Classifier.OllamaBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_BASE_URL")
		}
		if baseURL == "" {
			baseURL = classifier.DefaultOllamaBaseURL
		}
		model := a.cfg.Classifier.Model
		return classifier.NewOllamaBackend(baseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", a.cfg.Classifier.Backend)
	}
}

func rulesOnlyFallback(record *model.FileRecord) model.Classification {
	return model.Classification{
		Category:   model.CategoryInbox,
		Subject:    record.Path,
		Confidence: 0,
		Rationale:  "rules-only mode: no rule matched",
		Source:     model.SourceFallback,
	}
}

// existingDestinations walks baseRoot (if it exists) and returns every
// regular file path under it, used to seed the ephemeral collision
// index before planning.
func existingDestinations(baseRoot string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(baseRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

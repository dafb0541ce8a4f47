// Package main provides triagectl, the offline companion to the referral
// triage server. It runs the classifier, clinician feedback capture, the
// weight tuner and the escalation sweep against local SQLite files,
// requiring no database or network.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/referral-triage-server/internal/alerting"
	"github.com/referral-triage-server/internal/audit"
	"github.com/referral-triage-server/internal/config"
	"github.com/referral-triage-server/internal/domain"
	"github.com/referral-triage-server/internal/feedback"
	"github.com/referral-triage-server/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "classify":
		err = runClassify(os.Args[2:])
	case "feedback":
		err = runFeedback(os.Args[2:])
	case "tune":
		err = runTune(os.Args[2:])
	case "sweep":
		err = runSweep(os.Args[2:])
	case "accuracy":
		err = runAccuracy(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: triagectl <command> [flags]

Commands:
  classify   classify a referral and record the decision
  feedback   record a clinician's corrected score for a referral
  tune       run one weight-tuning pass over recorded feedback
  sweep      run one escalation sweep over undecided critical referrals
  accuracy   report classification accuracy for a window

Run 'triagectl <command> -h' for command flags.`)
}

// env bundles the SQLite-backed stores and services a subcommand needs.
// Every store lives under the data directory so repeated invocations see
// the same history.
type env struct {
	cfg        *domain.Config
	logger     *logrus.Logger
	audit      audit.Store
	feedback   feedback.Store
	weights    *service.Weights
	classifier *service.ClassifierService
}

func openEnv(ctx context.Context, dataDir string) (*env, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	manager, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	auditStore, err := audit.NewSQLiteStore(filepath.Join(dataDir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	feedbackStore, err := feedback.NewSQLiteStore(filepath.Join(dataDir, "feedback.db"))
	if err != nil {
		auditStore.Close()
		return nil, fmt.Errorf("opening feedback store: %w", err)
	}

	weights := service.NewWeights(logger, newFileWeightStore(filepath.Join(dataDir, "weights.json")), nil)
	if err := weights.Bootstrap(ctx); err != nil {
		auditStore.Close()
		feedbackStore.Close()
		return nil, err
	}

	classifier, err := service.NewClassifierService(logger, weights, auditStore, cfg.Triage)
	if err != nil {
		auditStore.Close()
		feedbackStore.Close()
		return nil, err
	}

	return &env{
		cfg:        cfg,
		logger:     logger,
		audit:      auditStore,
		feedback:   feedbackStore,
		weights:    weights,
		classifier: classifier,
	}, nil
}

func (e *env) close() {
	e.audit.Close()
	e.feedback.Close()
}

func runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	dataDir := fs.String("data", "./triage-data", "data directory for local stores")
	id := fs.String("id", "", "referral id (required)")
	age := fs.Float64("age", -1, "patient age in years (required)")
	specialty := fs.String("specialty", "", "requested specialty (required)")
	justification := fs.String("justification", "", "referral justification text")
	motive := fs.String("motive", "", "consultation motive text")
	diagnosis := fs.String("diagnosis", "", "presumptive diagnosis text")
	fromStdin := fs.Bool("stdin", false, "read the features as JSON from stdin instead of flags")
	fs.Parse(args)

	ctx := context.Background()
	e, err := openEnv(ctx, *dataDir)
	if err != nil {
		return err
	}
	defer e.close()

	features := &domain.ReferralFeatures{
		ReferralID:           *id,
		AgeYears:             *age,
		Specialty:            *specialty,
		Justification:        *justification,
		Motive:               *motive,
		PresumptiveDiagnosis: *diagnosis,
	}
	if *fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		features = &domain.ReferralFeatures{}
		if err := json.Unmarshal(data, features); err != nil {
			return fmt.Errorf("parsing features: %w", err)
		}
	}

	result, err := e.classifier.Classify(ctx, features)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runFeedback(args []string) error {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	dataDir := fs.String("data", "./triage-data", "data directory for local stores")
	referralID := fs.String("referral", "", "referral id (required)")
	clinicianID := fs.String("clinician", "", "clinician id")
	score := fs.Float64("score", -1, "corrected score in [0,1] (required)")
	rationale := fs.String("rationale", "", "free-text rationale")
	fs.Parse(args)

	ctx := context.Background()
	e, err := openEnv(ctx, *dataDir)
	if err != nil {
		return err
	}
	defer e.close()

	svc := service.NewFeedbackService(e.logger, e.classifier, e.feedback)
	record, err := svc.Submit(ctx, *referralID, *clinicianID, *score, *rationale)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runTune(args []string) error {
	fs := flag.NewFlagSet("tune", flag.ExitOnError)
	dataDir := fs.String("data", "./triage-data", "data directory for local stores")
	fs.Parse(args)

	ctx := context.Background()
	e, err := openEnv(ctx, *dataDir)
	if err != nil {
		return err
	}
	defer e.close()

	tuner := service.NewWeightTuner(e.logger, e.feedback, e.audit, e.weights, e.cfg.Tuning)
	outcome, err := tuner.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(outcome)
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	dataDir := fs.String("data", "./triage-data", "data directory for local stores")
	window := fs.Duration("window", 7*24*time.Hour, "how far back to look for undecided critical referrals")
	fs.Parse(args)

	ctx := context.Background()
	e, err := openEnv(ctx, *dataDir)
	if err != nil {
		return err
	}
	defer e.close()

	// Undecided critical referrals are reconstructed from the audit trail:
	// any CRITICAL classification in the window without a recorded outcome
	// is still waiting on a clinician.
	now := time.Now().UTC()
	classifications, err := e.audit.FetchForPeriod(ctx, now.Add(-*window), now)
	if err != nil {
		return err
	}
	referrals := alerting.NewMemoryReferralSource()
	for _, c := range classifications {
		if c.Priority == domain.PriorityCritical && c.Outcome == domain.OutcomeNone {
			referrals.Add(&domain.Referral{
				ID:        c.ReferralID,
				Priority:  c.Priority,
				Decision:  domain.OutcomeNone,
				CreatedAt: c.ClassifiedAt,
			})
		}
	}

	engine := alerting.NewEngine(
		e.logger,
		alerting.NewMemoryAlertStore(),
		referrals,
		alerting.StaticUserDirectory{},
		alerting.NopDispatcher{},
		e.cfg.Alerts,
	)
	alerts, err := engine.Sweep(ctx)
	if err != nil {
		return err
	}
	return printJSON(alerts)
}

func runAccuracy(args []string) error {
	fs := flag.NewFlagSet("accuracy", flag.ExitOnError)
	dataDir := fs.String("data", "./triage-data", "data directory for local stores")
	window := fs.Duration("window", 30*24*time.Hour, "reporting window")
	fs.Parse(args)

	ctx := context.Background()
	e, err := openEnv(ctx, *dataDir)
	if err != nil {
		return err
	}
	defer e.close()

	now := time.Now().UTC()
	report, err := e.audit.Accuracy(ctx, now.Add(-*window), now)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

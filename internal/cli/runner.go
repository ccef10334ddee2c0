package cli

import (
	"context"
	"fmt"

	service "github.com/okian/agropredict/internal/app"
	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/pkg/logger"
)

const workerCount = 8

// SetupLogging sends log output to the CLI's error stream.
func SetupLogging(cfg *Config) error {
	if err := logger.Init(logger.WithOutput(cfg.Err)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "warn"
	if cfg.Verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

// Run executes one round, or lists the catalog, and prints the result.
// It returns ErrNoResult when the round settled without a successful model.
func Run(ctx context.Context, cfg *Config) error {
	svc := service.New(
		service.WithBaseURL(cfg.BaseURL),
		service.WithInvokeTimeout(cfg.Timeout),
		service.WithWorkerCount(workerCount),
		service.WithLogger(logger.Named("predict")),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer svc.Stop()

	if cfg.ListModels {
		ov, err := svc.Overview(ctx)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		return Render(cfg.Out, cfg.Format, ov)
	}

	if cfg.Verbose {
		unsubscribe, err := svc.Subscribe(cfg.Domain, logProgress(ctx))
		if err != nil {
			return err
		}
		defer unsubscribe()
	}

	res, err := svc.Submit(ctx, cfg.Domain, service.Submission{Input: cfg.Input, Models: cfg.Models})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	st, err := svc.AwaitRound(ctx, cfg.Domain, res.RoundID)
	if err != nil {
		return fmt.Errorf("await round %d: %w", res.RoundID, err)
	}

	report := NewReport(st)
	if err := Render(cfg.Out, cfg.Format, report); err != nil {
		return err
	}
	if report.Status == model.StatusAllFailed {
		return ErrNoResult
	}
	return nil
}

func logProgress(ctx context.Context) func(model.SessionState) {
	l := logger.Named("progress")
	return func(st model.SessionState) {
		if st.Aggregate == nil {
			return
		}
		fields := []logger.Field{
			logger.Uint64("round", st.RoundID),
			logger.String("phase", string(st.Phase)),
			logger.Int("responded", st.Aggregate.Responded),
			logger.Int("requested", st.Aggregate.Requested),
		}
		if b := st.Aggregate.Best; b != nil {
			fields = append(fields, logger.String("best", string(b.ModelID)), logger.Float64("confidence", b.Confidence))
		}
		l.Debug(ctx, "round progress", fields...)
	}
}

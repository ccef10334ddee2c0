package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/agropredict/internal/adapters/predictor/stub"
	"github.com/okian/agropredict/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	var (
		addr       = flag.String("addr", ":5000", "listen address")
		minLatency = flag.Duration("min-latency", 80*time.Millisecond, "minimum simulated latency")
		maxLatency = flag.Duration("max-latency", 150*time.Millisecond, "maximum simulated latency")
		seed       = flag.Int64("seed", 42, "latency random seed")
		failing    = flag.String("fail", "", "model to fail with HTTP 200 {\"error\": ...}")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	l := logger.Named("stub")

	opts := []stub.Option{stub.WithLatencyRange(*minLatency, *maxLatency), stub.WithSeed(*seed)}
	if *failing != "" {
		opts = append(opts, stub.WithFailure(*failing, stub.FailErrorField))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           stub.New(opts...),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		l.Info(ctx, "stub prediction service listening", logger.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(ctx, "stub server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(ctx, "stub shutdown failed", logger.Error(err))
	}
}

// Command agentprobe is a standalone demonstration binary: it connects
// one agentclient.Client to a remote ej-agent over ssh, issues repeated
// poll requests, and optionally serves a read-only admin API over the
// result. Grounded on cmd/bulk-delete/main.go's shape (flag-parsed CLI,
// zap.NewDevelopmentConfig logger, fatal on setup failure).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ejudge-sh/agent-client/internal/adminapi"
	"github.com/ejudge-sh/agent-client/internal/agentclient"
	"github.com/ejudge-sh/agent-client/internal/statusredis"
)

func main() {
	endpoint := flag.String("endpoint", "", "ssh destination (user@host)")
	id := flag.String("id", "", "client id (auto-generated if empty)")
	name := flag.String("name", "", "client name")
	mode := flag.String("mode", "", "agent mode: compile|run (empty omits -m)")
	agentPath := flag.String("agent-path", "", "remote ej-agent path override")
	pollInterval := flag.Duration("poll-interval", 2*time.Second, "interval between poll requests")
	adminAddr := flag.String("admin-addr", "", "if set, serve the read-only admin API on this address")
	redisAddr := flag.String("redis-addr", "", "if set, publish client status to this Redis address")
	flag.Parse()

	if *endpoint == "" {
		fmt.Println("Usage: ./agentprobe -endpoint=user@host [-id=...] [-mode=compile|run]")
		os.Exit(1)
	}

	log := buildLogger()
	log = log.Named("main")

	m, err := parseMode(*mode)
	if err != nil {
		log.Fatal("invalid -mode", zap.Error(err))
	}

	var reporter agentclient.StatusReporter
	if *redisAddr != "" {
		rep := statusredis.New(*redisAddr, 0, log)
		defer rep.Close()
		reporter = rep
	}

	cl := agentclient.New()
	if err := cl.Init(&agentclient.Config{
		Endpoint:       *endpoint,
		ID:             *id,
		Name:           *name,
		Mode:           m,
		AgentPath:      *agentPath,
		MaxQueuedBytes: 1 << 20,
		Logger:         log,
		Reporter:       reporter,
	}); err != nil {
		log.Fatal("init failed", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cl.Connect(ctx); err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}

	var httpServer *http.Server
	if *adminAddr != "" {
		reg := &singleClientRegistry{clients: map[string]*agentclient.Client{cl.ID(): cl}}
		router := adminapi.NewRouter(reg, log)
		httpServer = adminapi.Serve(*adminAddr, router, log)
		go func() {
			log.Info("admin API listening", zap.String("addr", *adminAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("admin API failed", zap.Error(err))
			}
		}()
	}

	pollLoop(ctx, log, cl, *pollInterval)

	cl.Close()
	if err := cl.Destroy(); err != nil {
		log.Warn("destroy failed", zap.Error(err))
	}
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
}

// pollLoop is the generalised poll_queue_func demo from spec.md §4.6:
// submit "poll" on a fixed interval until ctx is cancelled or the client
// reports it has stopped.
func pollLoop(ctx context.Context, log *zap.Logger, cl *agentclient.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reply, err := cl.Poll(ctx)
			if err != nil {
				log.Warn("poll failed", zap.Error(err))
				if cl.IsClosed() {
					return
				}
				continue
			}
			log.Info("poll reply", zap.ByteString("raw", reply))
		}
	}
}

func parseMode(s string) (agentclient.Mode, error) {
	switch s {
	case "":
		return agentclient.ModeUnspecified, nil
	case "compile":
		return agentclient.ModeCompile, nil
	case "run":
		return agentclient.ModeRun, nil
	default:
		return agentclient.ModeUnspecified, fmt.Errorf("unknown mode %q", s)
	}
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	return zap.Must(logConfig.Build())
}

// singleClientRegistry adapts one Client to adminapi.Registry for this
// demo binary, which only ever supervises one connection at a time.
type singleClientRegistry struct {
	mu      sync.Mutex
	clients map[string]*agentclient.Client
}

func (r *singleClientRegistry) Clients() map[string]*agentclient.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*agentclient.Client, len(r.clients))
	for k, v := range r.clients {
		out[k] = v
	}
	return out
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/routes"
	"github.com/theleywin/workkie/src/store"
)

func main() {
	configPath := flag.String("config", "workkie.yaml", "YAML config file")
	flag.Parse()
	defer glog.Flush()

	cfg, err := lib.LoadConfig(*configPath)
	if err != nil {
		glog.Fatalf("[main] load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, store.NewMongoStore(lib.NewConnector(cfg)))
	// the store reconnects on demand, so a failed first contact is not fatal
	if err := a.Init(ctx); err != nil {
		glog.Warningf("[main] init: %v", err)
	}

	server := routes.NewServer(a)
	go func() {
		<-ctx.Done()
		glog.Infof("[main] shutting down")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			glog.Warningf("[main] shutdown: %v", err)
		}
	}()

	glog.Infof("[main] server is running on http://localhost:%s", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		glog.Errorf("[main] listen: %v", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		glog.Warningf("[main] close store: %v", err)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"customervoice.app/internal/config"
	"customervoice.app/internal/migrate"
	"customervoice.app/internal/obs"
	"customervoice.app/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	var (
		dsn       = flag.String("dsn", "", "PostgreSQL DSN (defaults to database.url)")
		seedsPath = flag.String("seeds", "", "Directory with SQL seed files")
		timeout   = flag.Duration("timeout", 60*time.Second, "Overall command timeout")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [flags] up|down|status|seed|bootstrap")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := obs.InitLogger(obs.LogOptions{Level: "info", Format: "text"})

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config_load_failed")
	}
	if *dsn == "" {
		*dsn = cfg.Database.URL
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide -dsn or DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		log.WithError(err).Fatal("open_db_failed")
	}
	defer store.Close()

	var seeds fs.FS
	if *seedsPath != "" {
		seeds = os.DirFS(*seedsPath)
	}
	mgr := migrate.NewManager(store.DB(), migrate.Schema(), seeds)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []migrate.Applied
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Printf("%s\t%s\n", item.At.Format(time.RFC3339), item.Name)
		}
	case "bootstrap":
		var res pg.BootstrapResult
		res, err = store.Bootstrap(ctx, cfg.Seed)
		if err == nil {
			log.WithFields(logrus.Fields{
				"tenant_id":    res.TenantID,
				"workspace_id": res.WorkspaceID,
				"user_id":      res.UserID,
				"user_email":   res.UserEmail,
			}).Info("bootstrap_seed_applied")
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s failed", cmd)
	}
}

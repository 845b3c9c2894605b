// Command migrate manages the store schema.
//
//	migrate up              apply pending SQL migrations
//	migrate auto            AutoMigrate every persistent model
//	migrate status          print the schema policy and pending migrations
//	migrate down <version>  roll back one SQL migration
//
// With STORE_DRIVER=mongo, up and auto both ensure the collection indexes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/francozeta/musicbox/internal/bootstrap"
	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/database"
	"github.com/francozeta/musicbox/internal/mongostore"
)

type command func(ctx context.Context, rt *bootstrap.Runtime, cfg *config.Config, args []string) error

var sqlCommands = map[string]command{
	"up": func(ctx context.Context, rt *bootstrap.Runtime, _ *config.Config, _ []string) error {
		if err := database.RunMigrations(ctx, rt.SQL); err != nil {
			return err
		}
		log.Println("sql migrations applied")
		return nil
	},
	"auto": func(ctx context.Context, rt *bootstrap.Runtime, cfg *config.Config, _ []string) error {
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, rt.SQL, cfg); err != nil {
			return err
		}
		log.Println("models auto-migrated")
		return nil
	},
	"status": func(ctx context.Context, rt *bootstrap.Runtime, cfg *config.Config, _ []string) error {
		st, err := database.GetSchemaStatus(ctx, rt.SQL, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("mode:     %s (env %s)\n", st.Mode, st.Environment)
		fmt.Printf("sql:      %t\nauto:     %t\n", st.WillRunSQL, st.WillRunAutoMigrate)
		fmt.Printf("applied:  %v\n", st.AppliedVersions)
		for _, m := range st.PendingMigrations {
			fmt.Printf("pending:  %06d_%s\n", m.Version, m.Name)
		}
		return nil
	},
	"down": func(ctx context.Context, rt *bootstrap.Runtime, _ *config.Config, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("down needs exactly one version")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := database.RollbackMigration(ctx, rt.SQL, version); err != nil {
			return err
		}
		log.Printf("rolled back migration %d", version)
		return nil
	},
}

func ensureIndexes(ctx context.Context, rt *bootstrap.Runtime, _ *config.Config, _ []string) error {
	if err := mongostore.EnsureIndexes(ctx, rt.Mongo); err != nil {
		return err
	}
	log.Println("mongodb indexes ensured")
	return nil
}

var mongoCommands = map[string]command{"up": ensureIndexes, "auto": ensureIndexes}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate <up|auto|status|down <version>>")
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(strings.ToLower(flag.Arg(0)), flag.Args()[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(name string, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipSchema: true, SkipRedis: true})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	commands, driver := sqlCommands, "sql"
	if rt.Mongo != nil {
		commands, driver = mongoCommands, "mongo"
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%q is not a %s migrate command", name, driver)
	}
	if err := cmd(ctx, rt, cfg, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mradamcox/ohmg/config"
	"github.com/mradamcox/ohmg/dispatch"
	"github.com/mradamcox/ohmg/gateway"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/routers"
	"github.com/mradamcox/ohmg/sessions"
	"github.com/mradamcox/ohmg/vocab"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sessions" {
		os.Exit(runSessionsCommand(os.Args[2:]))
	}
	serve()
}

func buildEngine() *sessions.Engine {
	models.InitDB()
	gw := gateway.NewLocal(models.DB)
	notifier := sessions.NewWatermillNotifier(sessions.NewBus())
	ttl := time.Duration(config.LockTTL) * time.Second
	return sessions.NewEngine(models.DB, gw, vocab.NewManager(), notifier, ttl, config.Layers)
}

func serve() {
	engine := buildEngine()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := dispatch.NewPool(engine, 4)
	pool.Start(ctx)

	// background sweep for leases that lapsed mid-run
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := engine.DeleteExpiredSessions(ctx); err != nil {
					log.Printf("expired session sweep: %v", err)
				} else if n > 0 {
					log.Printf("reclaimed %d expired sessions", n)
				}
			}
		}
	}()

	r := gin.Default()
	routers.MapRouters(r, engine, pool)
	log.Printf("listening on %s", config.Bind)
	if err := r.Run(config.Bind); err != nil {
		log.Fatal(err)
	}
}

// runSessionsCommand drives the session lifecycle from the command line:
// ohmg sessions run|undo|redo|list|delete-expired [--pk N] [--type kind] [--keep]
func runSessionsCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ohmg sessions run|undo|redo|list|delete-expired [--pk N] [--type kind] [--keep]")
		return 2
	}
	op := args[0]

	fs := flag.NewFlagSet("sessions "+op, flag.ExitOnError)
	pk := fs.Uint("pk", 0, "session id")
	kind := fs.String("type", "", "session kind filter (preparation|georeference|trim)")
	keep := fs.Bool("keep", false, "keep the session record after undo")
	fs.Parse(args[1:])

	engine := buildEngine()
	ctx := context.Background()

	switch op {
	case "run":
		if *pk == 0 {
			fmt.Fprintln(os.Stderr, "sessions run requires --pk")
			return 2
		}
		if err := engine.Run(ctx, *pk); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		s, err := engine.Get(ctx, *pk)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(s)
	case "undo":
		if *pk == 0 {
			fmt.Fprintln(os.Stderr, "sessions undo requires --pk")
			return 2
		}
		if err := engine.Undo(ctx, *pk, *keep); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("session %d undone\n", *pk)
	case "redo":
		if *pk == 0 {
			fmt.Fprintln(os.Stderr, "sessions redo requires --pk")
			return 2
		}
		if err := engine.Redo(ctx, *pk); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("session %d redone\n", *pk)
	case "list":
		if *kind != "" && *kind != models.KindPreparation && *kind != models.KindGeoreference && *kind != models.KindTrim {
			fmt.Fprintf(os.Stderr, "unknown session type %q\n", *kind)
			return 2
		}
		list, err := engine.List(ctx, *kind, 0)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for i := range list {
			fmt.Println(&list[i])
		}
	case "delete-expired":
		n, err := engine.DeleteExpiredSessions(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("deleted %d expired sessions\n", n)
	default:
		fmt.Fprintf(os.Stderr, "unknown sessions operation %q\n", op)
		return 2
	}
	return 0
}

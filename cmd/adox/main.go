package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"adox/internal/amqp"
	"adox/internal/cli"
	"adox/internal/core"
	"adox/internal/log"
	"adox/internal/services"
	"adox/internal/storage"
)

const usage = `Usage: adox <command> [flags]

Ledger commands:
  append    add a transaction to a user's ledger
  list      print a user's transactions, newest first
  totals    print per-currency received totals and the disbursed total
  delete    remove a transaction by id

Snapshot commands:
  backup    capture the user's ledger under a named snapshot
  restore   replace the user's ledger with a snapshot's contents
  reset     back up the ledger under a name, then clear it
  backups   list the user's stored snapshots
  verify    decode every stored snapshot payload and report corruption

Run 'adox <command> -h' for command flags.`

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentCLI)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Audit publishing is best-effort; an unreachable broker never blocks
	// ledger operations.
	var audit services.AuditPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Audit publishing disabled", log.FieldError, err)
		} else {
			defer client.Close()
			audit = client
		}
	}

	app := &app{
		repo:      repo,
		ledger:    services.NewLedgerService(repo, audit),
		snapshots: services.NewSnapshotManager(repo, audit),
	}

	ctx := context.Background()
	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "adox %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

type app struct {
	repo      *storage.Repository
	ledger    *services.LedgerService
	snapshots *services.SnapshotManager
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "append":
		return a.append(ctx, args)
	case "list":
		return a.list(ctx, args)
	case "totals":
		return a.totals(ctx, args)
	case "delete":
		return a.delete(ctx, args)
	case "backup":
		return a.backup(ctx, args)
	case "restore":
		return a.restore(ctx, args)
	case "reset":
		return a.reset(ctx, args)
	case "backups":
		return a.backups(ctx, args)
	case "verify":
		return a.verify(ctx, args)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// userFlags returns a FlagSet preloaded with the flags every scoped command
// shares: the acting user and the admin-only all-users switch.
func userFlags(name string) (*flag.FlagSet, *int64, *bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	user := fs.Int64("user", 0, "acting user id")
	all := fs.Bool("all", false, "operate across all users (admins only)")
	return fs, user, all
}

func (a *app) roleOf(ctx context.Context, userID int64) (core.Role, error) {
	if userID <= 0 {
		return "", fmt.Errorf("a positive -user id is required")
	}
	role, err := a.repo.UserRole(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("look up user %d: %w", userID, err)
	}
	return role, nil
}

func (a *app) append(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("append", flag.ExitOnError)
	user := fs.Int64("user", 0, "acting user id")
	date := fs.String("date", "", "transaction date (YYYY-MM-DD)")
	timeOfDay := fs.String("time", "", "transaction time (HH:MM)")
	client := fs.String("client", "", "sending client name")
	origin := fs.String("origin", "", "origin city or branch")
	currency := fs.String("currency", "GBP", "source currency (GBP or EUR)")
	amount := fs.String("amount", "", "received amount, e.g. 150.00")
	recipient := fs.String("recipient", "", "receiving party name")
	bank := fs.String("bank", "", "destination bank")
	disbursed := fs.String("disbursed", "0", "amount sent, whole Kz units")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *user <= 0 {
		return fmt.Errorf("a positive -user id is required")
	}
	cur, err := core.ParseCurrency(*currency)
	if err != nil {
		return err
	}
	amt, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}
	kz, err := core.ParseWholeUnits(*disbursed)
	if err != nil {
		return err
	}

	rec, err := a.ledger.Append(ctx, *user, core.Draft{
		Date:      *date,
		Time:      *timeOfDay,
		Client:    *client,
		Origin:    *origin,
		Currency:  cur,
		Amount:    amt,
		Recipient: *recipient,
		Bank:      *bank,
		Disbursed: kz,
	})
	if err != nil {
		return err
	}

	fmt.Printf("appended %s\n", rec.ID)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs, user, all := userFlags("list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	role, err := a.roleOf(ctx, *user)
	if err != nil {
		return err
	}

	records, err := a.ledger.List(ctx, *user, role, *all)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTIME\tCLIENT\tAMOUNT\tRECIPIENT\tDISBURSED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\t%s\t%d Kz\n",
			r.ID, r.Date, r.Time, r.Client, r.Amount, r.Currency, r.Recipient, r.Disbursed)
	}
	return w.Flush()
}

func (a *app) totals(ctx context.Context, args []string) error {
	fs, user, all := userFlags("totals")
	if err := fs.Parse(args); err != nil {
		return err
	}
	role, err := a.roleOf(ctx, *user)
	if err != nil {
		return err
	}

	totals, err := a.ledger.Totals(ctx, *user, role, *all)
	if err != nil {
		return err
	}

	for _, ca := range totals.ByCurrency {
		fmt.Printf("received %s %s\n", ca.Amount, ca.Currency)
	}
	fmt.Printf("disbursed %d Kz\n", totals.Disbursed)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs, user, all := userFlags("delete")
	id := fs.String("id", "", "transaction id to remove")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("an -id is required")
	}
	role, err := a.roleOf(ctx, *user)
	if err != nil {
		return err
	}

	removed, err := a.ledger.Delete(ctx, *user, role, *all, *id)
	if err != nil {
		return err
	}
	if removed {
		fmt.Printf("deleted %s\n", *id)
	} else {
		fmt.Printf("no transaction %s in scope\n", *id)
	}
	return nil
}

func (a *app) backup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	user := fs.Int64("user", 0, "acting user id")
	name := fs.String("name", "", "snapshot name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user <= 0 {
		return fmt.Errorf("a positive -user id is required")
	}

	snap, err := a.snapshots.Capture(ctx, *user, *name)
	if err != nil {
		return err
	}
	fmt.Printf("captured %q with %d records\n", snap.Name, len(snap.Entries))
	return nil
}

func (a *app) restore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	user := fs.Int64("user", 0, "acting user id")
	name := fs.String("name", "", "snapshot name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user <= 0 {
		return fmt.Errorf("a positive -user id is required")
	}

	res, err := a.snapshots.Restore(ctx, *user, *name)
	if err != nil {
		return err
	}
	fmt.Printf("restored %q with %d records\n", res.Name, res.RecordsRestored)
	return nil
}

func (a *app) reset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	user := fs.Int64("user", 0, "acting user id")
	name := fs.String("name", "", "name for the backup taken before clearing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user <= 0 {
		return fmt.Errorf("a positive -user id is required")
	}

	res, err := a.snapshots.ResetWithBackup(ctx, *user, *name)
	if err != nil {
		return err
	}
	fmt.Printf("backed up %q and cleared %d records\n", res.Snapshot.Name, res.RecordsCleared)
	return nil
}

func (a *app) backups(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	user := fs.Int64("user", 0, "acting user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user <= 0 {
		return fmt.Errorf("a positive -user id is required")
	}

	infos, err := a.snapshots.List(ctx, *user)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no snapshots")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCAPTURED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\n", info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// verify walks every stored snapshot across all owners and decodes its
// payload, reporting any that no longer parse as a ledger entry list.
func (a *app) verify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	workers := fs.Int("workers", 4, "concurrent owners to check")
	if err := fs.Parse(args); err != nil {
		return err
	}

	owners, err := a.repo.SnapshotOwners(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)

	checked := make([]int, len(owners))
	for i, owner := range owners {
		i, owner := i, owner
		g.Go(func() error {
			infos, err := a.snapshots.List(gctx, owner)
			if err != nil {
				return fmt.Errorf("list snapshots for user %d: %w", owner, err)
			}
			for _, info := range infos {
				payload, _, err := a.repo.GetSnapshot(gctx, owner, info.Name)
				if err != nil {
					return fmt.Errorf("read snapshot %q for user %d: %w", info.Name, owner, err)
				}
				var entries []core.Entry
				if err := json.Unmarshal(payload, &entries); err != nil {
					return fmt.Errorf("snapshot %q for user %d is corrupt: %w", info.Name, owner, err)
				}
				for j, e := range entries {
					d := e.Draft()
					if err := d.Validate(); err != nil {
						return fmt.Errorf("snapshot %q for user %d, entry %d: %w", info.Name, owner, j, err)
					}
				}
				checked[i]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, n := range checked {
		total += n
	}
	fmt.Printf("verified %d snapshots across %d users\n", total, len(owners))
	return nil
}

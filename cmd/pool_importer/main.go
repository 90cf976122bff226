// Command pool_importer prints the wheel a YAML manifest produces and can
// create the pool in postgres. A manifest looks like:
//
//	id: spring-promo
//	owner: acme
//	company_name: Acme
//	ticket_price: 100
//	no_win_bp: 2000
//	items:
//	  - name: Mug
//	    value: 10
//	  - name: Bike
//	    value: 500
//	    supply: 3
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	wheel "github.com/Ashenafi-pixel/prize-wheel-engine"
	"github.com/Ashenafi-pixel/prize-wheel-engine/migrations"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
	"github.com/Ashenafi-pixel/prize-wheel-engine/store"
)

func main() {
	manifestPath := flag.String("manifest", "", "Path to the YAML pool manifest")
	apply := flag.Bool("apply", false, "Create the pool in the database named by DATABASE_URL")
	migrate := flag.Bool("migrate", false, "Apply schema migrations before creating the pool")
	flag.Parse()

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -manifest argument")
		os.Exit(1)
	}
	_ = godotenv.Load(".env")

	if err := run(context.Background(), *manifestPath, *apply, *migrate, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, manifestPath string, apply, migrate bool, out io.Writer) error {
	f, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	params, err := loadManifest(f)
	if err != nil {
		return err
	}
	p, err := pool.Initialize(params, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pool %q: %w", params.ID, err)
	}
	if err := render(out, p); err != nil {
		return err
	}
	if !apply {
		return nil
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is not set; cannot connect to DB")
	}
	db, err := wheel.OpenDB(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := migrations.Apply(db); err != nil {
			return err
		}
	}
	if err := store.NewPostgresStore(db).CreatePool(ctx, p); err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	fmt.Fprintf(out, "Imported pool %q (owner=%s, vault=%s)\n", p.ID, p.Owner, p.Vault)
	return nil
}

func loadManifest(r io.Reader) (pool.Params, error) {
	var params pool.Params
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&params); err != nil {
		return pool.Params{}, fmt.Errorf("parse manifest: %w", err)
	}
	if params.ID == "" || params.Owner == "" {
		return pool.Params{}, fmt.Errorf("manifest must include id and owner")
	}
	return params, nil
}

// render prints the wheel and the per-item economics.
func render(out io.Writer, p *pool.Pool) error {
	fmt.Fprintf(out, "Pool %s  price=%d  total_value=%d  no_win=%d bp\n\n", p.ID, p.TicketPrice, p.TotalValue, p.NoWinBP)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tVALUE\tBP\tPCT\tEXP. SPINS\tEXP. COST\tPROFIT\tSPINS@80%")
	for _, a := range p.Analysis() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s%%\t%.1f\t%.0f\t%.0f\t%d\n",
			a.Name, a.Value, a.ProbabilityBP, a.ProbabilityPct.String(),
			a.ExpectedSpins, a.ExpectedCost, a.Profit, a.RecommendedSpins)
	}
	return tw.Flush()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/ganhos-keeper/internal/client"
	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/model"
)

var errUsage = errors.New("usage")

type app struct {
	c   *client.Client
	out io.Writer
	now func() time.Time
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return a.add(ctx, args)
	case "rm":
		return a.rm(ctx, args)
	case "list":
		printJSON(a.out, listing{Records: a.c.List(ctx), Summary: a.c.Summary(ctx)})
	case "status":
		printJSON(a.out, a.c.Status())
	case "sync":
		res, err := a.c.ForceSync(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, res)
	case "settings":
		return a.settings(ctx, args)
	case "info":
		printJSON(a.out, a.c.StorageInfo(ctx))
	case "retry-failed":
		n, err := a.c.RetryFailed()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d operation(s) scheduled for retry\n", n)
	case "clear-pending":
		if err := a.c.ClearPending(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
	case "clear-data":
		fs := flag.NewFlagSet("clear-data", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		yes := fs.Bool("yes", false, "confirm")
		if err := fs.Parse(args); err != nil || !*yes {
			return fmt.Errorf("%w: clear-data needs -yes", errs.ErrValidation)
		}
		if err := a.c.ClearData(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
	default:
		return errUsage
	}
	return nil
}

type listing struct {
	Records []model.Record `json:"records"`
	Summary model.Summary  `json:"summary"`
}

// decimalFlag is a flag.Value for optional decimal amounts.
type decimalFlag struct {
	v   decimal.NullDecimal
	set bool
}

func (d *decimalFlag) String() string {
	if !d.v.Valid {
		return ""
	}
	return d.v.Decimal.String()
}

func (d *decimalFlag) Set(s string) error {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	d.v = decimal.NewNullDecimal(v)
	d.set = true
	return nil
}

func (a *app) parseRecord(args []string) (model.Record, error) {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "record id (generated when empty)")
	date := fs.String("date", a.now().Format(model.DateLayout), "day, YYYY-MM-DD")
	var earnings, km, hours, costs decimalFlag
	fs.Var(&earnings, "earnings", "total earnings")
	fs.Var(&km, "km", "kilometres driven")
	fs.Var(&hours, "hours", "hours worked")
	fs.Var(&costs, "costs", "additional costs")
	if err := fs.Parse(args); err != nil {
		return model.Record{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if !earnings.set || !km.set {
		return model.Record{}, fmt.Errorf("%w: need -earnings and -km", errs.ErrValidation)
	}
	r := model.Record{
		ID:              *id,
		Date:            *date,
		TotalEarnings:   earnings.v.Decimal,
		KmDriven:        km.v.Decimal,
		HoursWorked:     hours.v,
		AdditionalCosts: costs.v,
	}
	if r.ID == "" {
		r.ID = model.NewID()
	}
	return r, r.Validate()
}

func (a *app) add(ctx context.Context, args []string) error {
	r, err := a.parseRecord(args)
	if err != nil {
		return err
	}
	if err := a.c.Save(ctx, r); err != nil {
		return err
	}
	fmt.Fprintln(a.out, r.ID)
	return nil
}

func (a *app) rm(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "record id")
	if err := fs.Parse(args); err != nil || *id == "" {
		return fmt.Errorf("%w: need -id", errs.ErrValidation)
	}
	if err := a.c.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *app) settings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var cost decimalFlag
	fs.Var(&cost, "cost-per-km", "distance cost rate")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if cost.set {
		if err := a.c.SaveSettings(ctx, model.Settings{CostPerKm: cost.v.Decimal}); err != nil {
			return err
		}
	}
	printJSON(a.out, a.c.GetSettings(ctx))
	return nil
}

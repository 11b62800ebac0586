package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dentalcore/internal/report"
	"dentalcore/pkg/domain"
)

var errLoginRejected = errors.New("login rejected")

func newFlags(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses args and rejects leftover positional arguments.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(fs.Output(), "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

func requireID(fs *flag.FlagSet, name string, id int64) error {
	if id <= 0 {
		_, _ = fmt.Fprintf(fs.Output(), "-%s is required\n", name)
		return errUsage
	}
	return nil
}

// table writes a header line and rows as tab separated text.
func table(w io.Writer, rows func(tw io.Writer)) error {
	bw := bufio.NewWriter(w)
	rows(bw)
	return bw.Flush()
}

func runCatalog(_ context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "catalog"), args); err != nil {
		return err
	}
	for _, t := range a.svc.Catalog() {
		_, _ = fmt.Fprintln(a.stdout, t)
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "login")
	username := fs.String("username", "", "user name")
	password := fs.String("password", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	ok, err := a.svc.VerifyLogin(ctx, *username, *password)
	if err != nil {
		return err
	}
	if !ok {
		return errLoginRejected
	}
	_, _ = fmt.Fprintln(a.stdout, "login ok")
	return nil
}

func runUserAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "user add")
	username := fs.String("username", "", "user name")
	password := fs.String("password", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.svc.AddUser(ctx, *username, *password); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "user %s saved\n", *username)
	return nil
}

func patientFlags(fs *flag.FlagSet) *domain.PatientInput {
	in := &domain.PatientInput{}
	fs.StringVar(&in.Name, "name", "", "full name")
	fs.StringVar(&in.DOB, "dob", "", "date of birth, YYYY-MM-DD")
	fs.StringVar(&in.Phone, "phone", "", "phone number, unique per patient")
	return in
}

func runPatientRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "patient register")
	in := patientFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := a.svc.RegisterPatient(ctx, *in)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, id)
	return nil
}

func writePatients(w io.Writer, patients []domain.Patient) error {
	return table(w, func(tw io.Writer) {
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tDOB\tPHONE")
		for _, p := range patients {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.DOB, p.Phone)
		}
	})
}

func runPatientList(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "patient list"), args); err != nil {
		return err
	}
	patients, err := a.svc.ListPatients(ctx)
	if err != nil {
		return err
	}
	return writePatients(a.stdout, patients)
}

func runPatientSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "patient search")
	query := fs.String("q", "", "text matched against id, name, phone and date of birth")
	if err := parse(fs, args); err != nil {
		return err
	}
	patients, err := a.svc.SearchPatients(ctx, *query)
	if err != nil {
		return err
	}
	return writePatients(a.stdout, patients)
}

func runPatientShow(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "patient show")
	id := fs.Int64("id", 0, "patient id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID(fs, "id", *id); err != nil {
		return err
	}
	p, err := a.svc.GetPatient(ctx, *id)
	if err != nil {
		return err
	}
	return writePatients(a.stdout, []domain.Patient{p})
}

func runPatientUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "patient update")
	id := fs.Int64("id", 0, "patient id")
	in := patientFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID(fs, "id", *id); err != nil {
		return err
	}
	if err := a.svc.UpdatePatient(ctx, *id, *in); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "patient %d updated\n", *id)
	return nil
}

func runPatientDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "patient delete")
	id := fs.Int64("id", 0, "patient id")
	yes := fs.Bool("yes", false, "confirm deletion of the patient and all treatments")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID(fs, "id", *id); err != nil {
		return err
	}
	if !*yes {
		_, _ = fmt.Fprintf(a.stderr, "refusing to delete patient %d and all treatments without -yes\n", *id)
		return errUsage
	}
	if err := a.svc.DeletePatient(ctx, *id); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "patient %d deleted\n", *id)
	return nil
}

func runPatientDeleted(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "patient deleted"), args); err != nil {
		return err
	}
	deleted, err := a.svc.DeletedPatients(ctx)
	if err != nil {
		return err
	}
	return table(a.stdout, func(tw io.Writer) {
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tDOB\tPHONE\tDELETED_AT")
		for _, p := range deleted {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.DOB, p.Phone, p.DeletedAt.Format(time.RFC3339))
		}
	})
}

func runTreatmentRecord(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "treatment record")
	in := domain.TreatmentInput{}
	fs.Int64Var(&in.PatientID, "patient", 0, "patient id")
	fs.StringVar(&in.Date, "date", time.Now().Format(domain.DateLayout), "treatment date, YYYY-MM-DD")
	fs.StringVar(&in.Description, "desc", "", "treatment description, see the catalog command")
	cost := fs.String("cost", "", "cost; omit when unknown")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID(fs, "patient", in.PatientID); err != nil {
		return err
	}
	if *cost != "" {
		v, err := strconv.ParseFloat(*cost, 64)
		if err != nil {
			_, _ = fmt.Fprintf(a.stderr, "invalid -cost %q\n", *cost)
			return errUsage
		}
		in.Cost = &v
	}
	id, err := a.svc.RecordTreatment(ctx, in)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, id)
	return nil
}

func formatCost(c *float64) string {
	if c == nil {
		return "-"
	}
	return strconv.FormatFloat(*c, 'f', 2, 64)
}

func runTreatmentHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "treatment history")
	id := fs.Int64("patient", 0, "patient id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireID(fs, "patient", *id); err != nil {
		return err
	}
	history, err := a.svc.PatientHistory(ctx, *id)
	if err != nil {
		return err
	}
	return table(a.stdout, func(tw io.Writer) {
		_, _ = fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tCOST")
		for _, h := range history {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", h.TreatmentID, h.Date, h.Description, formatCost(h.Cost))
		}
	})
}

func runReportMonths(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "report months"), args); err != nil {
		return err
	}
	months, err := a.svc.AvailableMonths(ctx)
	if err != nil {
		return err
	}
	for _, m := range months {
		_, _ = fmt.Fprintln(a.stdout, m)
	}
	return nil
}

func monthFlag(fs *flag.FlagSet) *string {
	return fs.String("month", time.Now().Format(domain.MonthLayout), "reporting month, YYYY-MM")
}

func runReportCounts(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "report counts")
	month := monthFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	counts, err := a.svc.CountsByMonth(ctx, *month)
	if err != nil {
		return err
	}
	return table(a.stdout, func(tw io.Writer) {
		_, _ = fmt.Fprintln(tw, "DESCRIPTION\tCOUNT")
		for _, c := range counts {
			_, _ = fmt.Fprintf(tw, "%s\t%d\n", c.Description, c.Count)
		}
	})
}

func runReportRevenue(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "report revenue")
	month := monthFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	revenue, err := a.svc.RevenueByMonth(ctx, *month)
	if err != nil {
		return err
	}
	return table(a.stdout, func(tw io.Writer) {
		_, _ = fmt.Fprintln(tw, "DESCRIPTION\tTOTAL_COST")
		for _, r := range revenue {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", r.Description, formatCost(&r.Total))
		}
	})
}

func runReportExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "report export")
	month := monthFlag(fs)
	formats := fs.String("format", "csv,json", "comma separated formats: csv, json")
	if err := parse(fs, args); err != nil {
		return err
	}
	parsed, err := report.ParseFormats(strings.Split(*formats, ",")...)
	if err != nil {
		return err
	}
	artifacts, err := a.svc.ExportMonthReport(ctx, *month, parsed...)
	if err != nil {
		return err
	}
	return table(a.stdout, func(tw io.Writer) {
		_, _ = fmt.Fprintln(tw, "FORMAT\tKEY\tBYTES\tURL")
		for _, art := range artifacts {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", art.Format, art.Key, art.Size, art.URL)
		}
	})
}

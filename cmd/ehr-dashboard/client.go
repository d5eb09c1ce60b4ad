package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehr/dashboard/internal/dashboard"
	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
	"github.com/ehr/dashboard/internal/platform/apiclient"
	"github.com/ehr/dashboard/internal/platform/collection"
	"github.com/ehr/dashboard/internal/tui"
)

var errNotLoggedIn = errors.New("not logged in; run `ehr-dashboard login` first")

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openClient(ctx, true)
			if err != nil {
				return err
			}
			defer env.Close()

			stop, err := env.session.Observe(ctx)
			if err != nil {
				return err
			}
			defer stop()
			serveMetrics(ctx, env.cfg.MetricsAddr, env.metrics, env.logger)

			d := dashboard.New(ctx, env.client, env.session, env.logger,
				dashboard.WithPageSize(env.cfg.PageSize),
				dashboard.WithMetrics(env.metrics),
			)
			defer d.Close()

			env.logger.Info().Str("api", env.cfg.APIURL).Str("credential_backend", env.cfg.CredentialBackend).Msg("dashboard started")
			return tui.Run(ctx, d)
		},
	}
}

func loginCmd() *cobra.Command {
	return credentialCmd("login", "Log in and store the credential", func(ctx context.Context, c *apiclient.Client, user, pass string) (string, error) {
		return c.Login(ctx, user, pass)
	})
}

func registerCmd() *cobra.Command {
	return credentialCmd("register", "Create an account and log in", func(ctx context.Context, c *apiclient.Client, user, pass string) (string, error) {
		return c.Register(ctx, user, pass)
	})
}

type exchangeFunc func(ctx context.Context, c *apiclient.Client, username, password string) (string, error)

func credentialCmd(use, short string, exchange exchangeFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}

			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			token, err := exchange(ctx, env.client, username, password)
			if err != nil {
				if use == "login" && errors.Is(err, apiclient.ErrAuthentication) {
					return errors.New(dashboard.MsgLoginFailed)
				}
				return err
			}
			if err := env.session.Login(ctx, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", username)
			return nil
		},
	}
	cmd.Flags().StringP("username", "u", "", "Account username")
	cmd.Flags().StringP("password", "p", "", "Account password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			token, ok := env.session.CurrentToken()
			if err := env.session.Logout(ctx); err != nil {
				return err
			}
			if ok {
				// The local credential is gone either way.
				if err := env.client.RevokeToken(ctx, token); err != nil {
					env.logger.Warn().Err(err).Msg("revoke credential")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClient(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.Close()

			out := cmd.OutOrStdout()
			if env.session.IsAuthenticated() {
				fmt.Fprintf(out, "Logged in (%s backend, API %s)\n", env.cfg.CredentialBackend, env.cfg.APIURL)
			} else {
				fmt.Fprintln(out, "Not logged in")
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session transitions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			events, unsubscribe := env.session.Subscribe()
			defer unsubscribe()
			stop, err := env.session.Observe(ctx)
			if err != nil {
				return err
			}
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s credential (authenticated: %t)\n", env.cfg.CredentialBackend, env.session.IsAuthenticated())
			for {
				select {
				case <-ctx.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					line := fmt.Sprintf("%s generation=%d", e.Kind, e.Generation)
					if e.Reason != "" {
						line += " reason=" + e.Reason
					}
					fmt.Fprintln(out, line)
				}
			}
		},
	}
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List, show and add patients",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			limit, _ := cmd.Flags().GetInt("limit")
			search, _ := cmd.Flags().GetString("search")
			age, _ := cmd.Flags().GetString("age")

			bucket, err := patient.ParseAgeBucket(age)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()
			if !env.session.IsAuthenticated() {
				return errNotLoggedIn
			}
			if limit == 0 {
				limit = env.cfg.PageSize
			}

			state, err := loadPage(ctx, env, page, limit)
			if err != nil {
				return err
			}
			visible := patient.Filter(state.Items, patient.Criteria{SearchText: search, AgeBucket: bucket})
			writePatients(cmd.OutOrStdout(), visible)
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d\n", state.PageNumber, state.TotalPages)
			return nil
		},
	}
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("limit", 0, "Page size (defaults to PAGE_SIZE)")
	listCmd.Flags().String("search", "", "Case-insensitive name filter, applied to the loaded page")
	listCmd.Flags().String("age", "all", "Age bucket: all, under18, 18to35, 36to60, above60")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()
			if !env.session.IsAuthenticated() {
				return errNotLoggedIn
			}

			p, err := env.client.GetPatient(ctx, args[0])
			if err != nil {
				if errors.Is(err, apiclient.ErrNotFound) {
					return errors.New(dashboard.MsgDetailFailed)
				}
				return err
			}
			writePatient(cmd.OutOrStdout(), p)
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			form := patient.Form{}
			form.Name, _ = cmd.Flags().GetString("name")
			form.Age, _ = cmd.Flags().GetString("age")
			form.Condition, _ = cmd.Flags().GetString("condition")
			form.MedicalHistory, _ = cmd.Flags().GetString("history")
			form.TreatmentPlan, _ = cmd.Flags().GetString("plan")

			draft, err := form.Draft()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()
			if !env.session.IsAuthenticated() {
				return errNotLoggedIn
			}

			p, err := env.client.CreatePatient(ctx, draft)
			if err != nil {
				return fmt.Errorf("%s: %w", dashboard.MsgPatientAddFailed, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added patient %s (%s).\n", p.Name, p.ID)
			return nil
		},
	}
	addCmd.Flags().String("name", "", "Full name")
	addCmd.Flags().String("age", "", "Age in years")
	addCmd.Flags().String("condition", "", "Current condition")
	addCmd.Flags().String("history", "", "Comma-separated medical history")
	addCmd.Flags().String("plan", "", "Treatment plan")
	cmd.AddCommand(addCmd)

	return cmd
}

// loadPage drives a Fetcher the way the dashboard does: issue, run, commit.
// A page past the end is replaced by the last page.
func loadPage(ctx context.Context, env *clientEnv, page, size int) (collection.State[patient.Patient], error) {
	fetcher := collection.New("patients", func(ctx context.Context, page, size int) (collection.Page[patient.Patient], error) {
		items, total, err := env.client.ListPatients(ctx, page, size)
		return collection.Page[patient.Patient]{Items: items, TotalPages: total}, err
	}, env.logger, collection.WithMetrics[patient.Patient](env.metrics))

	run, err := fetcher.Load(page, size)
	for attempt := 0; err == nil && attempt < 2; attempt++ {
		result := run(ctx)
		switch fetcher.Commit(result) {
		case collection.Applied:
			return fetcher.State(), nil
		case collection.Failed:
			return fetcher.State(), result.Err
		case collection.OutOfRange:
			run, err = fetcher.Reload(size)
		default:
			return fetcher.State(), fmt.Errorf("page %d: result discarded", page)
		}
	}
	if err != nil {
		return fetcher.State(), err
	}
	return fetcher.State(), collection.ErrNoPage
}

func authorizationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "authorizations",
		Aliases: []string{"auth"},
		Short:   "List and submit insurance authorization requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every authorization request",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()
			if !env.session.IsAuthenticated() {
				return errNotLoggedIn
			}

			requests, err := env.client.ListAuthorizations(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", dashboard.MsgAuthListFailed, err)
			}
			writeAuthorizations(cmd.OutOrStdout(), requests)
			return nil
		},
	})

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an authorization request for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetString("patient")
			form := authorization.Form{}
			form.TreatmentType, _ = cmd.Flags().GetString("treatment")
			form.InsurancePlan, _ = cmd.Flags().GetString("plan")
			form.DateOfService, _ = cmd.Flags().GetString("date")
			form.DiagnosisCode, _ = cmd.Flags().GetString("diagnosis")
			form.DoctorNotes, _ = cmd.Flags().GetString("notes")

			sub := form.Submission(patientID)
			if err := sub.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			env, err := openClient(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()
			if !env.session.IsAuthenticated() {
				return errNotLoggedIn
			}

			if _, err := env.client.SubmitAuthorization(ctx, sub); err != nil {
				return fmt.Errorf("%s: %w", dashboard.MsgAuthorizationFailed, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dashboard.MsgAuthorizationSent)
			return nil
		},
	}
	submitCmd.Flags().String("patient", "", "Patient ID")
	submitCmd.Flags().String("treatment", "", "Treatment type")
	submitCmd.Flags().String("plan", "", "Insurance plan")
	submitCmd.Flags().String("date", "", "Date of service (YYYY-MM-DD)")
	submitCmd.Flags().String("diagnosis", "", "Diagnosis code")
	submitCmd.Flags().String("notes", "", "Doctor's notes")
	cmd.AddCommand(submitCmd)

	return cmd
}

func writePatients(out io.Writer, items []patient.Patient) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No patients on this page match the filter.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAGE\tCONDITION")
	for _, p := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Age, p.Condition)
	}
	_ = w.Flush()
}

func writePatient(out io.Writer, p *patient.Patient) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", p.ID)
	fmt.Fprintf(w, "Name\t%s\n", p.Name)
	fmt.Fprintf(w, "Age\t%d\n", p.Age)
	fmt.Fprintf(w, "Condition\t%s\n", p.Condition)
	fmt.Fprintf(w, "Medical history\t%s\n", strings.Join(p.MedicalHistory, ", "))
	fmt.Fprintf(w, "Treatment plan\t%s\n", p.TreatmentPlan)
	_ = w.Flush()
}

func writeAuthorizations(out io.Writer, items []authorization.Request) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No authorization requests.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATIENT\tTREATMENT\tPLAN\tDATE\tDIAGNOSIS\tSTATUS\tSUBMITTED")
	for _, r := range items {
		submitted := ""
		if !r.CreatedAt.IsZero() {
			submitted = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.PatientID, r.TreatmentType, r.InsurancePlan, r.DateOfService, r.DiagnosisCode, r.Status, submitted)
	}
	_ = w.Flush()
}

package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lojf/vbs/internal/services"
)

var (
	rootCmd = &cobra.Command{
		Use:           "vbs",
		Short:         "Vacation Bible School registration and payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE:  runServe, // serve.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}

	autoAssignCmd = &cobra.Command{
		Use:   "autoassign",
		Short: "Replace every group assignment with the grade-based split",
		RunE:  runAutoAssign,
	}

	finalizeCmd = &cobra.Command{
		Use:   "finalize <registration id> <session id>",
		Short: "Mark a registration paid by hand and send its confirmation once",
		Args:  cobra.ExactArgs(2),
		RunE:  runFinalize,
	}

	hashPasswordCmd = &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(h))
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, autoAssignCmd, finalizeCmd, hashPasswordCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	// Open already migrated
	a.log.Info("migrations applied")
	return nil
}

func runAutoAssign(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.assignments.AutoAssign(cmd.Context())
	if err != nil {
		return err
	}
	byGroup, unassigned := res.ByGroup()
	groups, err := a.assignments.Groups(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, g := range groups {
		fmt.Fprintf(out, "%-24s %d\n", g.Name, len(byGroup[g.ID]))
	}
	fmt.Fprintf(out, "%-24s %d\n", "(unassigned)", len(unassigned))
	return nil
}

func runFinalize(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return errors.Errorf("bad registration id %q", args[0])
	}
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.payments.FinalizeAndNotify(cmd.Context(), uint(id), args[1])
	if err != nil {
		return err
	}
	a.log.Info("finalized",
		zap.Uint64("registration_id", id),
		zap.Stringer("outcome", rep.Outcome),
		zap.Bool("notified", rep.Notified),
	)
	if rep.NotifyErr != nil {
		return errors.Wrap(rep.NotifyErr, "payment recorded but the confirmation failed")
	}
	if rep.Outcome == services.OutcomeNotFound {
		return services.ErrNotFound
	}
	return nil
}

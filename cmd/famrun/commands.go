package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"famrun/internal/registrations"
	"famrun/internal/seed"
	"famrun/internal/session"
	"famrun/internal/store"
	"famrun/internal/ticket"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and list the applied ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.DB().QueryContext(cmd.Context(), `SELECT name, applied_at FROM schema_migrations ORDER BY name`)
		if err != nil {
			return fmt.Errorf("list migrations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				name      string
				appliedAt int64
			)
			if err := rows.Scan(&name, &appliedAt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, time.UnixMilli(appliedAt).UTC().Format(time.RFC3339))
		}
		log.Info("database is up to date", zap.String("path", cfg.DBPath))
		return rows.Err()
	},
}

var tokenStaff string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a staff bearer token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		tokens, err := session.NewTokens(cfg.SessionSecret, cfg.SessionTTL)
		if err != nil {
			return err
		}
		raw, sess, err := tokens.Issue(tokenStaff)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		fmt.Fprintf(cmd.ErrOrStderr(), "staff %s, expires %s\n", sess.StaffID, sess.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load race categories and claim locations from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := seed.LoadFile(seedFile)
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		cats, locs, err := seed.Apply(cmd.Context(), st, f)
		if err != nil {
			return err
		}
		log.Info("seed applied", zap.Int("categories", cats), zap.Int("claim_locations", locs))
		return nil
	},
}

var (
	ticketOut  string
	ticketSize int
)

var ticketCmd = &cobra.Command{
	Use:   "ticket <registration_id>",
	Short: "Print a registration's ticket payload, optionally writing the QR image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		regs := registrations.NewService(st, ticket.NewCodec(cfg.TicketPrefix), log)
		payload, err := regs.Ticket(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), payload)
		if ticketOut == "" {
			return nil
		}
		png, err := ticket.PNG(payload, ticketSize)
		if err != nil {
			return err
		}
		return os.WriteFile(ticketOut, png, 0o644)
	},
}

var sheetsSyncCmd = &cobra.Command{
	Use:   "sheets-sync",
	Short: "Rewrite the Registrations sheet from the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		sh, err := openSheets(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if sh == nil {
			return fmt.Errorf("sheets are not configured")
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		all, err := st.ListRegistrations(cmd.Context(), store.RegistrationFilter{})
		if err != nil {
			return err
		}
		if err := sh.SyncRegistrations(cmd.Context(), all); err != nil {
			return err
		}
		log.Info("roster synced", zap.Int("registrations", len(all)), zap.String("spreadsheet_id", sh.SpreadsheetID()))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenStaff, "staff", "", "staff id recorded on every change made with the token")
	_ = tokenCmd.MarkFlagRequired("staff")

	seedCmd.Flags().StringVar(&seedFile, "file", "seed.yaml", "YAML file with categories and claim_locations")

	ticketCmd.Flags().StringVarP(&ticketOut, "out", "o", "", "write the QR code PNG to this path")
	ticketCmd.Flags().IntVar(&ticketSize, "size", 256, "QR code size in pixels")
}

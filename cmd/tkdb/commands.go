package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"github.com/tropotek/tk-database/backup"
	"github.com/tropotek/tk-database/migrate"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tkdb version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "tkdb", version)
		},
	}
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			tables, err := conn.TableList(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [path]",
		Short: "Apply pending migrations",
		Long: `Apply every .sql file in path (and path/<dialect>) that has not been applied yet.

Files are applied in name order, names starting with _ or . are skipped.
With --backup the database is saved before migrating and restored if a migration fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, dir, err := a.migrator(cmd, args, a.config.GetBool(cfgKeyMigrateBackup))
			if err != nil {
				return err
			}
			applied, err := m.Migrate(cmd.Context(), dir)
			for _, p := range applied {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrated", p)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate")
			}
			return nil
		},
	}
	cmd.Flags().Bool("backup", false, "save the database before migrating (restored on failure)")
	_ = a.config.BindPFlag(cfgKeyMigrateBackup, cmd.Flags().Lookup("backup"))
	cmd.AddCommand(&cobra.Command{
		Use:   "pending [path]",
		Short: "Report whether migrations are pending",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, dir, err := a.migrator(cmd, args, false)
			if err != nil {
				return err
			}
			pending, err := m.IsPending(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if pending {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations pending")
			} else {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "up to date")
			}
			return nil
		},
	})
	return cmd
}

func (a *app) migrator(cmd *cobra.Command, args []string, withBackup bool) (*migrate.Migrator, string, error) {
	conn, err := a.connect(cmd.Context())
	if err != nil {
		return nil, "", err
	}
	dir := a.config.GetString(cfgKeyMigratePath)
	if len(args) > 0 {
		dir = args[0]
	}
	options := []any{a.logger, migrate.TempPath(a.config.GetString(cfgKeyMigrateTemp))}
	if withBackup {
		b, err := a.backup(cmd)
		if err != nil {
			return nil, "", err
		}
		options = append(options, b)
	}
	m, err := migrate.New(conn, options...)
	return m, dir, err
}

func (a *app) backup(cmd *cobra.Command) (*backup.Backup, error) {
	conn, err := a.connect(cmd.Context())
	if err != nil {
		return nil, err
	}
	return backup.New(conn, a.logger,
		backup.Exclude(a.config.GetStringSlice(cfgKeyBackupExclude)),
		backup.Gzip(a.config.GetBool(cfgKeyBackupGzip)))
}

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Save or restore a database dump",
	}
	save := &cobra.Command{
		Use:   "save [dir|file.sql]",
		Short: "Save a database dump",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backup(cmd)
			if err != nil {
				return err
			}
			target := a.config.GetString(cfgKeyBackupDir)
			if len(args) > 0 {
				target = args[0]
			}
			file, err := b.Save(cmd.Context(), target)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		},
	}
	save.Flags().StringSlice("exclude", nil, "tables to leave out of the dump")
	save.Flags().Bool("gzip", false, "gzip compress the dump")
	_ = a.config.BindPFlag(cfgKeyBackupExclude, save.Flags().Lookup("exclude"))
	_ = a.config.BindPFlag(cfgKeyBackupGzip, save.Flags().Lookup("gzip"))
	cmd.AddCommand(save)
	cmd.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a database dump (.sql or .sql.gz)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backup(cmd)
			if err != nil {
				return err
			}
			if err = b.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "restored", args[0])
			return nil
		},
	})
	return cmd
}

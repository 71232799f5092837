package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flagroutes/internal/model"
	"flagroutes/internal/routes"
)

func (a *app) newRoutes() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List routes with their client counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg, log, closer, err := a.load()
			if err != nil {
				return err
			}
			defer closer.Close()
			db, err := openSQL(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			list, err := routes.NewQuery(db, cfg.Flags, log).ListRoutes(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, r := range list {
				rows = append(rows, []string{strconv.FormatInt(r.ID, 10), r.Name, strconv.Itoa(r.ClientCount), r.Description})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CLIENTS", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func (a *app) newRoster() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "roster ROUTE_ID",
		Short: "Show a route's stops and flag totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Errorf("invalid route id %q", args[0])
			}
			cmd.SilenceUsage = true
			cfg, log, closer, err := a.load()
			if err != nil {
				return err
			}
			defer closer.Close()
			db, err := openSQL(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			q := routes.NewQuery(db, cfg.Flags, log)
			if asJSON {
				nav, err := q.Navigation(cmd.Context(), id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(nav)
			}
			clients, err := q.Roster(cmd.Context(), id)
			if err != nil {
				return err
			}
			printRoster(cmd.OutOrStdout(), q, clients)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the navigation view as JSON")
	return cmd
}

func printRoster(w io.Writer, q *routes.Query, clients []model.EnrichedClient) {
	rows := make([][]string, 0, len(clients))
	for i, c := range clients {
		active := "no"
		if c.HasActiveOrder {
			active = "yes"
		}
		flags := q.Summary([]model.EnrichedClient{c}).TotalUSFlags
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(c.ClientID, 10),
			c.FirstName + " " + c.LastName,
			c.Address,
			active,
			strconv.Itoa(flags),
		})
	}
	renderTable(w, []string{"#", "CLIENT", "NAME", "ADDRESS", "ACTIVE", "US FLAGS"}, rows)

	sum := q.Summary(clients)
	fmt.Fprintf(w, "\nTotal US flags: %d\n", sum.TotalUSFlags)
	fmt.Fprintf(w, "Types: %s\n", histogram(sum.FlagTypes))
	fmt.Fprintf(w, "Sizes: %s\n", histogram(sum.FlagSizes))
}

func histogram(m map[string]int) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, m[k])
	}
	return out
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

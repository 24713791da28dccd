package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/agnivade/aprilvoice/providers/accounts"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cloud account usage of a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, _ := cmd.Flags().GetString("url")
		st, err := fetchStatus(&http.Client{Timeout: 10 * time.Second}, url)
		if err != nil {
			return err
		}
		renderStatus(os.Stdout, st)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("url", "http://localhost:8000", "server base URL")
}

type cloudStatus struct {
	Mode            string                     `json:"mode"`
	Providers       map[string]accounts.Status `json:"providers"`
	CurrentProvider string                     `json:"current_provider"`
	Message         string                     `json:"message"`
}

func fetchStatus(client *http.Client, baseURL string) (cloudStatus, error) {
	resp, err := client.Get(baseURL + "/cloud/status")
	if err != nil {
		return cloudStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cloudStatus{}, fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var st cloudStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return cloudStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func renderStatus(w io.Writer, st cloudStatus) {
	if st.Mode != "cloud" {
		fmt.Fprintf(w, "Mode: %s\n", st.Mode)
		if st.Message != "" {
			fmt.Fprintln(w, st.Message)
		}
		return
	}

	fmt.Fprintf(w, "Mode: cloud (current provider: %s)\n\n", st.CurrentProvider)

	names := make([]string, 0, len(st.Providers))
	for name := range st.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Provider", "Account", "Used (min)", "Limit (min)", "Enabled", "Current"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)

	for _, name := range names {
		ps := st.Providers[name]
		for i, acc := range ps.Accounts {
			limit := "unlimited"
			if acc.Limit > 0 {
				limit = strconv.FormatFloat(acc.Limit, 'f', 1, 64)
			}
			current := ""
			if i == ps.CurrentIndex {
				current = "*"
			}
			table.Append([]string{
				name,
				acc.Name,
				strconv.FormatFloat(acc.Used, 'f', 2, 64),
				limit,
				strconv.FormatBool(acc.Enabled),
				current,
			})
		}
	}
	table.Render()
}

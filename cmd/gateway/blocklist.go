package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	secinfra "risk-gateway/middleware/security/infra"

	"github.com/spf13/cobra"
)

// newBlockCmd cria `block` ou `unblock`. Com --admin a alteração vai para a
// API de um gateway em execução; sem ela, o arquivo da lista é editado e os
// gateways que o observam recarregam sozinhos.
func newBlockCmd(block bool) *cobra.Command {
	var (
		file     string
		adminURL string
	)
	use, short := "block <identity>", "Deny an identity at the gateway"
	if !block {
		use, short = "unblock <identity>", "Allow a previously blocked identity"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := args[0]
			if adminURL != "" {
				return updateViaAdmin(cmd.Context(), adminURL, identity, block)
			}
			if file == "" {
				return errors.New("either --file (or BLOCKLIST_FILE) or --admin is required")
			}
			if err := secinfra.EditBlockFile(file, block, identity); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb(block), identity)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", os.Getenv("BLOCKLIST_FILE"), "block list YAML file")
	cmd.Flags().StringVar(&adminURL, "admin", "", "admin API base URL of a running gateway (e.g. http://localhost:9090)")
	return cmd
}

func verb(block bool) string {
	if block {
		return "blocked"
	}
	return "unblocked"
}

func updateViaAdmin(ctx context.Context, base, identity string, block bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	method := http.MethodPut
	if !block {
		method = http.MethodDelete
	}
	target := strings.TrimRight(base, "/") + "/blocklist/" + url.PathEscape(identity)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("admin request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin request: unexpected status %s", resp.Status)
	}
	return nil
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arnatech/noc/pkg/nocsdk"
)

var apiCmd = &cobra.Command{
	Use:   "api <method> <path>",
	Short: "Send an authenticated request and print the response",
	Long: `Send a raw authenticated request to one of the backends.

The request goes through the same token handling as every other command:
an expired access token is refreshed and the request retried once.

Examples:
  noc api GET /chat/history
  noc api --backend sso GET /auth/profile/
  noc api PATCH /documents/12/ --data '{"title":"Core runbook"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runAPI,
}

func init() {
	apiCmd.Flags().StringP("backend", "b", "chat", "Backend to call: chat or sso")
	apiCmd.Flags().StringP("data", "d", "", "JSON request body")
}

func runAPI(cmd *cobra.Command, args []string) error {
	backend, _ := cmd.Flags().GetString("backend")
	data, _ := cmd.Flags().GetString("data")

	client, err := application.Client(backend)
	if err != nil {
		return err
	}

	req := nocsdk.Request{
		Method: strings.ToUpper(args[0]),
		Path:   args[1],
	}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return errors.New("--data is not valid JSON")
		}
		req.Body = []byte(data)
	}

	resp, err := client.Do(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		fmt.Fprintln(out, resp.StatusCode, http.StatusText(resp.StatusCode))
		return nil
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, resp.Body, "", "  ") == nil {
		fmt.Fprintln(out, pretty.String())
		return nil
	}
	_, err = out.Write(resp.Body)
	return err
}

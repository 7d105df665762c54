package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arnatech/noc/pkg/nocsdk"
)

// maxParallelUploads bounds concurrent uploads from one invocation.
const maxParallelUploads = 4

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage reference documents used by the assistant",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE:  runDocsList,
}

var docsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsGet,
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file...>",
	Short: "Upload one or more documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDocsUpload,
}

var docsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Change a document's title",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocsRename,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id...>",
	Short: "Delete documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDocsDelete,
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsGetCmd)
	docsCmd.AddCommand(docsUploadCmd)
	docsCmd.AddCommand(docsRenameCmd)
	docsCmd.AddCommand(docsDeleteCmd)

	docsListCmd.Flags().StringP("search", "s", "", "Only show titles containing this text")
	docsListCmd.Flags().Bool("json", false, "Print as JSON")
	docsGetCmd.Flags().Bool("json", false, "Print as JSON")
	docsUploadCmd.Flags().StringP("title", "t", "", "Document title (single file only)")
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	list, err := application.Chat.ListDocuments(ctx)
	if err != nil {
		return err
	}

	search, _ := cmd.Flags().GetString("search")
	docs := filterDocuments(list.Documents, search)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd, docs)
	}
	renderDocuments(cmd.OutOrStdout(), docs)
	return nil
}

func runDocsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	doc, err := application.Chat.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd, doc)
	}

	out := cmd.OutOrStdout()
	renderDocuments(out, []nocsdk.Document{*doc})
	if doc.Content != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, doc.Content)
	}
	return nil
}

func runDocsUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	title, _ := cmd.Flags().GetString("title")
	if title != "" && len(args) > 1 {
		return errors.New("--title can only be used with a single file")
	}

	return uploadFiles(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), application.Chat.UploadDocument, args, title)
}

// uploadFn matches nocsdk.Client.UploadDocument.
type uploadFn func(ctx context.Context, filename string, r io.Reader, title string) (*nocsdk.Document, error)

// uploadFiles uploads every path with bounded concurrency. A failed upload
// does not cancel the others; each file's outcome is reported.
func uploadFiles(ctx context.Context, out, errOut io.Writer, upload uploadFn, paths []string, title string) error {
	var (
		mu     sync.Mutex
		failed int
		g      errgroup.Group
	)
	g.SetLimit(maxParallelUploads)

	for _, path := range paths {
		g.Go(func() error {
			doc, err := uploadFile(ctx, upload, path, title)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				_, _ = color.New(color.FgRed).Fprintf(errOut, "Failed to upload %s: %v\n", path, err)
				return nil
			}
			success(out, fmt.Sprintf("Uploaded %s as %q (id %s)", path, doc.Title, doc.ID))
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(paths))
	}
	return nil
}

func uploadFile(ctx context.Context, upload uploadFn, path, title string) (*nocsdk.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return upload(ctx, path, f, title)
}

func runDocsRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	doc, err := application.Chat.UpdateDocumentTitle(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	success(cmd.OutOrStdout(), fmt.Sprintf("Document %s renamed to %q", args[0], doc.Title))
	return nil
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireSession(ctx); err != nil {
		return err
	}

	for _, id := range args {
		if err := application.Chat.DeleteDocument(ctx, id); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), fmt.Sprintf("Document %s deleted", id))
	}
	return nil
}

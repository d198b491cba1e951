package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/gftdcojp/buslog/internal/serve"
	"github.com/spf13/cobra"
)

var (
	vAddr string
	vJSON bool
	vFrom string
	vTo   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorder and catalog status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st serve.Status
		if err := getJSON(vAddr+"/v1/status", &st); err != nil {
			return err
		}
		if vJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Status:     %s\n", st.Status)
		fmt.Fprintf(out, "Files:      %d (%d archived)\n", st.Files, st.ArchivedFiles)
		fmt.Fprintf(out, "Objects:    %d\n", st.Objects)
		fmt.Fprintf(out, "Local size: %d bytes\n", st.LocalBytes)
		fmt.Fprintf(out, "Archive:    %t\n", st.Archive)
		if r := st.Recorder; r != nil {
			fmt.Fprintf(out, "Recording:  %s (%d objects, %d bytes, seq %d)\n", r.CurrentFile, r.CurrentObjects, r.CurrentBytes, r.LastSeq)
			fmt.Fprintf(out, "Rotated:    %d files\n", r.FilesRotated)
		}
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List catalogued recordings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		u := vAddr + "/v1/files"
		if vFrom != "" || vTo != "" {
			q := url.Values{}
			if vFrom != "" {
				q.Set("from", vFrom)
			}
			if vTo != "" {
				q.Set("to", vTo)
			}
			u += "?" + q.Encode()
		}
		var files []serve.FileInfo
		if err := getJSON(u, &files); err != nil {
			return err
		}
		if vJSON {
			return printJSON(cmd.OutOrStdout(), files)
		}
		return printFiles(cmd.OutOrStdout(), files)
	},
}

var fileCmd = &cobra.Command{
	Use:   "file <name>",
	Short: "Show one catalogued recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var f serve.FileInfo
		if err := getJSON(vAddr+"/v1/files/"+url.PathEscape(args[0]), &f); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), f)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <name>",
	Short: "Upload a recording to the archive now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(vAddr+"/v1/admin/archive/"+url.PathEscape(args[0]), "application/json", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		var body map[string]string
		if err := decodeResponse(resp, &body); err != nil {
			return err
		}
		cmd.Printf("archived %s as %s\n", args[0], body["key"])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, filesCmd, fileCmd, archiveCmd} {
		c.Flags().StringVar(&vAddr, "addr", "http://localhost:8080", "recorder API address")
	}
	statusCmd.Flags().BoolVar(&vJSON, "json", false, "print raw JSON")
	filesCmd.Flags().BoolVar(&vJSON, "json", false, "print raw JSON")
	filesCmd.Flags().StringVar(&vFrom, "from", "", "only files recorded after this RFC 3339 time")
	filesCmd.Flags().StringVar(&vTo, "to", "", "only files recorded before this RFC 3339 time")
}

func printFiles(out io.Writer, files []serve.FileInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tOBJECTS\tSIZE\tSTART\tEND\tARCHIVED\tLOCAL")
	for _, f := range files {
		archived := "-"
		if f.ArchivedAt != nil {
			archived = f.ArchivedAt.Format(time.RFC3339)
		}
		local := "yes"
		if f.LocalDeleted {
			local = "no"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			f.Name, f.ObjectCount, f.FileSize,
			formatTime(f.FirstTimestamp), formatTime(f.LastTimestamp),
			archived, local)
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func getJSON(u string, v any) error {
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, v)
}

func decodeResponse(resp *http.Response, v any) error {
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

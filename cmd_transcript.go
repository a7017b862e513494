package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/TotallyMonica/swinit/transcript"
)

var transcriptSession string

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect recorded console transcripts",
}

var transcriptDumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print a console transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptDump,
}

func init() {
	transcriptDumpCmd.Flags().StringVar(&transcriptSession, "session", "", "only show entries of the session with this ID")
	transcriptCmd.AddCommand(transcriptDumpCmd)
	rootCmd.AddCommand(transcriptCmd)
}

func runTranscriptDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return dumpTranscript(cmd.OutOrStdout(), f, transcriptSession)
}

func dumpTranscript(w io.Writer, r io.Reader, session string) error {
	reader := transcript.NewReader(r)
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		if session != "" && e.Session != session {
			continue
		}
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
}

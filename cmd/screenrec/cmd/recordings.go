package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/screenrec/internal/codec"
	"github.com/jmylchreest/screenrec/internal/database"
	"github.com/jmylchreest/screenrec/internal/models"
	"github.com/jmylchreest/screenrec/internal/repository"
	"github.com/jmylchreest/screenrec/internal/storage"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List catalogued recordings",
	Long: `List the recordings stored in the catalog database, newest first.

The catalog is only written when catalog.enabled is true.`,
	RunE: runRecordings,
}

var recordingsShowCmd = &cobra.Command{
	Use:   "show <id|filename>",
	Short: "Show one catalogued recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordingsShow,
}

var recordingsDeleteCmd = &cobra.Command{
	Use:   "delete <id|filename>",
	Short: "Remove a recording from the catalog",
	Long: `Remove a recording from the catalog. With --file the recording is also
deleted from the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecordingsDelete,
}

func init() {
	rootCmd.AddCommand(recordingsCmd)
	recordingsCmd.AddCommand(recordingsShowCmd, recordingsDeleteCmd)

	recordingsCmd.Flags().Bool("json", false, "output as JSON")
	recordingsCmd.Flags().String("codec", "", "only list recordings with this video codec (h264, h265, av1)")
	recordingsCmd.Flags().String("audio-codec", "", "only list recordings with this audio codec (aac, opus, raw)")
	recordingsCmd.Flags().Int("limit", 0, "maximum number of recordings to list")

	recordingsDeleteCmd.Flags().Bool("file", false, "also delete the recording file")
}

// withRecordings opens the catalog for the duration of fn.
func withRecordings(ctx context.Context, fn func(repository.RecordingRepository) error) error {
	db, err := database.New(ctx, cfg.Catalog.Database, logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	return fn(repository.NewRecordingRepository(db.DB))
}

// findRecording looks a recording up by ULID, then by filename.
func findRecording(ctx context.Context, repo repository.RecordingRepository, ref string) (*models.Recording, error) {
	if id, err := models.ParseULID(ref); err == nil {
		rec, err := repo.GetByID(ctx, id)
		if err != nil || rec != nil {
			return rec, err
		}
	}

	rec, err := repo.GetByFilename(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("recording %q not found", ref)
	}
	return rec, nil
}

func runRecordings(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := repository.RecordingFilter{Limit: limit}
	if name, _ := cmd.Flags().GetString("codec"); name != "" {
		v, ok := codec.ParseVideo(name)
		if !ok {
			return fmt.Errorf("unknown video codec %q", name)
		}
		filter.VideoCodec = v.ContainerName()
	}
	if name, _ := cmd.Flags().GetString("audio-codec"); name != "" {
		a, ok := codec.ParseAudio(name)
		if !ok {
			return fmt.Errorf("unknown audio codec %q", name)
		}
		filter.AudioCodec = a.ContainerName()
	}

	return withRecordings(cmd.Context(), func(repo repository.RecordingRepository) error {
		recordings, err := repo.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), recordings)
		}
		return writeRecordingTable(cmd.OutOrStdout(), recordings)
	})
}

func runRecordingsShow(cmd *cobra.Command, args []string) error {
	return withRecordings(cmd.Context(), func(repo repository.RecordingRepository) error {
		rec, err := findRecording(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rec)
	})
}

func runRecordingsDelete(cmd *cobra.Command, args []string) error {
	withFile, _ := cmd.Flags().GetBool("file")

	return withRecordings(cmd.Context(), func(repo repository.RecordingRepository) error {
		rec, err := findRecording(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}

		if withFile {
			sandbox, err := storage.NewSandbox(cfg.Recording.OutputDir)
			if err != nil {
				return err
			}
			if err := sandbox.Remove(rec.Filename); err != nil {
				return err
			}
		}

		if err := repo.Delete(cmd.Context(), rec.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", rec.Filename, rec.ID)
		return nil
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRecordingTable(w io.Writer, recordings []*models.Recording) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tFILENAME\tSIZE\tDURATION\tVIDEO\tAUDIO\tFRAGMENTS")
	for _, r := range recordings {
		audio := "-"
		if r.HasAudio() {
			audio = r.AudioCodec
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID,
			r.SavedAt.Local().Format(time.DateTime),
			r.Filename,
			humanize.IBytes(uint64(r.Size)),
			r.Duration().Round(time.Millisecond),
			r.VideoCodec,
			audio,
			r.Fragments,
		)
	}
	return tw.Flush()
}

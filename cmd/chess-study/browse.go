package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/pgn"
	"github.com/dmmcquay/chess-study/internal/study"
)

func gamesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "games <file>",
		Short: "List the games of a PGN file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			_, snap, err := loadFile(cmd.Context(), cfg, args[0], study.NoSelection)
			if err != nil {
				return err
			}
			return printGames(cmd.OutOrStdout(), snap)
		},
	}
}

func movesCmd(opts *rootOptions) *cobra.Command {
	var (
		game  int
		board bool
	)

	cmd := &cobra.Command{
		Use:   "moves <file>",
		Short: "Print the tags and moves of one game of a PGN file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if game < 0 {
				return fmt.Errorf("--game must not be negative")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			session, snap, err := loadFile(cmd.Context(), cfg, args[0], game)
			if err != nil {
				return err
			}
			if snap.Selected != game {
				return fmt.Errorf("game %d not found, the file has %d games", game, len(snap.Games))
			}
			if err := printMoves(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
			if !board {
				return nil
			}
			final, err := session.Dispatch(cmd.Context(), study.Request{Command: study.CmdLastMove})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n%s\n", final.Board, final.FEN)
			return err
		},
	}

	cmd.Flags().IntVar(&game, "game", 0, "Index of the game in the file (0-based)")
	cmd.Flags().BoolVar(&board, "board", false, "Also print the final position")

	return cmd
}

// loadFile runs a file through an offline session, selecting game when it
// is not NoSelection.
func loadFile(ctx context.Context, cfg *config.Config, path string, game int) (*study.Session, study.Snapshot, error) {
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	src, err := pgn.ReadFile(path)
	if err != nil {
		return nil, study.Snapshot{}, err
	}
	logger.Debug("Read PGN file", "path", src.Path, "stored", src.Stored.String(), "size", src.Size.String())

	session := study.NewSession(logger,
		study.WithMaxGames(cfg.Study.MaxGames),
		study.WithDefaultPromotion(cfg.Study.DefaultPromotion),
	)
	snap, err := session.Dispatch(ctx, study.Request{Command: study.CmdLoadPGN, Text: src.Text})
	if err != nil || game == study.NoSelection {
		return session, snap, err
	}

	snap, err = session.Dispatch(ctx, study.Request{Command: study.CmdSelectGame, Index: game})
	return session, snap, err
}

func printGames(w io.Writer, snap study.Snapshot) error {
	if snap.Warning != "" {
		if _, err := fmt.Fprintf(w, "warning: %s\n", snap.Warning); err != nil {
			return err
		}
	}
	for _, g := range snap.Games {
		if _, err := fmt.Fprintf(w, "%3d  %s  %s\n", g.Index, g.Title, g.Subtitle); err != nil {
			return err
		}
	}
	return nil
}

func printMoves(w io.Writer, snap study.Snapshot) error {
	if d := snap.Details; d != nil {
		fmt.Fprintf(w, "[Event %q]\n[Site %q]\n[Date %q]\n", d.Event, d.Site, d.Date)
		fmt.Fprintf(w, "[White %q]\n[Black %q]\n[Result %q]\n\n", d.White, d.Black, d.Result)
	}
	if _, err := fmt.Fprintln(w, snap.MoveText); err != nil {
		return err
	}
	if snap.Warning != "" {
		_, err := fmt.Fprintf(w, "warning: %s\n", snap.Warning)
		return err
	}
	return nil
}

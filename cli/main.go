package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"commentguard"
	"commentguard/config"
	"commentguard/internal/logging"
	"commentguard/moderation"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "process":
		cmdProcess(args)
	case "batch":
		cmdBatch(args)
	case "analyze":
		cmdAnalyze(args)
	case "video":
		cmdVideo(args)
	case "delete":
		cmdDelete(args)
	case "auth":
		cmdAuth(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `commentguard - YouTube comment spam moderation

Usage:
  commentguard process [flags] <video-id>        Classify and (optionally) remove spam on a video
  commentguard batch [flags] <video-id>...       Process up to 10 videos one after another
  commentguard analyze <text>                    Classify a single comment text
  commentguard video <video-id>                  Show video metadata
  commentguard delete <comment-id>               Remove one comment with the stored session
  commentguard auth status|login|complete|logout Manage the channel owner's session
  commentguard help                              Show this help message

Examples:
  commentguard process dQw4w9WgXcQ                      # Dry run, nothing is removed
  commentguard process --enforce --max 100 dQw4w9WgXcQ  # Remove detected spam
  commentguard analyze "GACOR77 daftar sekarang"        # Classify one text
  commentguard auth login                               # Print the consent URL
  commentguard auth complete <state> <code>             # Finish the login

For help on specific command: commentguard <command> -h
`)
}

// setup loads configuration and builds the service.
func setup(ctx context.Context, verbose bool) *commentguard.Service {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	svc, err := commentguard.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return svc
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func cmdProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	enforce := fs.Bool("enforce", false, "Remove comments classified as spam (default is a dry run)")
	maxResults := fs.Int("max", 0, "Maximum comments to fetch (0 = configured default)")
	asJSON := fs.Bool("json", false, "Print the full response as JSON")
	all := fs.Bool("all", false, "List every comment, not only spam")
	verbose := fs.Bool("v", false, "Debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: commentguard process [flags] <video-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing video-id\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()
	svc := setup(ctx, *verbose)
	defer svc.Close()

	mode := "dry run"
	if *enforce {
		mode = "enforce"
	}
	fmt.Fprintf(os.Stderr, "Processing %s (%s)...\n", argv[0], mode)

	resp, err := svc.ProcessVideo(ctx, moderation.Request{
		VideoID:    argv[0],
		MaxResults: *maxResults,
		DryRun:     !*enforce,
	})
	if *asJSON {
		printJSON(resp)
	} else {
		printResponse(resp, *all)
	}
	if err != nil || !resp.Success {
		os.Exit(1)
	}
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	enforce := fs.Bool("enforce", false, "Remove comments classified as spam (default is a dry run)")
	maxResults := fs.Int("max", 0, "Maximum comments to fetch per video (0 = configured default)")
	asJSON := fs.Bool("json", false, "Print the full response as JSON")
	verbose := fs.Bool("v", false, "Debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: commentguard batch [flags] <video-id>...\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	ids := fs.Args()
	if len(ids) == 1 && strings.Contains(ids[0], ",") {
		ids = strings.Split(ids[0], ",")
	}

	ctx, cancel := signalContext()
	defer cancel()
	svc := setup(ctx, *verbose)
	defer svc.Close()

	out, err := svc.ProcessBatch(ctx, ids, *maxResults, !*enforce)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(out)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tSTATUS\tCOMMENTS\tSPAM\tDELETED\tERRORS")
	for _, item := range out.Items {
		r := item.Response
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			item.VideoID,
			status,
			r.Summary.TotalComments,
			r.Summary.SpamDetected,
			r.Summary.DeletedCount,
			truncate(strings.Join(r.Errors, "; "), 60),
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nVideos: %d  Succeeded: %d  Comments: %d  Spam: %d  Deleted: %d\n",
		out.Videos, out.Succeeded, out.TotalComments, out.SpamDetected, out.DeletedCount)
	if out.Succeeded != out.Videos {
		os.Exit(1)
	}
}

func cmdAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: commentguard analyze <text>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()
	svc := setup(ctx, *verbose)
	defer svc.Close()

	c, err := svc.AnalyzeComment(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Spam:        %v\n", c.IsSpam)
	fmt.Printf("Confidence:  %.2f\n", c.Confidence)
	fmt.Printf("Type:        %s\n", c.SpamType)
	fmt.Printf("Risk:        %s\n", c.RiskLevel)
	fmt.Printf("Action:      %s\n", c.RecommendedAction)
	fmt.Printf("Source:      %s\n", c.Source)
	if c.Reason != "" {
		fmt.Printf("Reason:      %s\n", c.Reason)
	}
	if len(c.Patterns) > 0 {
		fmt.Printf("Patterns:    %s\n", strings.Join(c.Patterns, ", "))
	}
}

func cmdDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "Print the outcome as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: commentguard delete [--json] <comment-id>\n")
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing comment-id\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()
	svc := setup(ctx, false)
	defer svc.Close()

	out, err := svc.DeleteComment(ctx, argv[0])
	if errors.Is(err, commentguard.ErrAuthRequired) {
		fmt.Fprintf(os.Stderr, "Error: not logged in; run 'commentguard auth login' first\n")
		os.Exit(1)
	}
	if *jsonOut {
		printJSON(out)
	} else {
		fmt.Printf("%s: %s\n", out.CommentID, out.Status)
		if out.Detail != "" {
			fmt.Printf("  %s\n", oneLine(out.Detail))
		}
	}
	if err != nil || out.Status.State != moderation.StateDeleted {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func cmdVideo(args []string) {
	fs := flag.NewFlagSet("video", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: commentguard video <video-id>\n")
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing video-id\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc := setup(ctx, false)
	defer svc.Close()

	info, err := svc.VideoInfo(ctx, argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Video ID:   %s\n", info.ID)
	fmt.Printf("Title:      %s\n", info.Title)
	fmt.Printf("Channel:    %s (%s)\n", info.ChannelTitle, info.ChannelID)
	fmt.Printf("Published:  %s\n", info.PublishedAt.Format(time.RFC3339))
	fmt.Printf("Views:      %d\n", info.ViewCount)
	fmt.Printf("Likes:      %d\n", info.LikeCount)
	fmt.Printf("Comments:   %d\n", info.CommentCount)
}

func cmdAuth(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: commentguard auth status|login|complete <state> <code>|logout\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	svc := setup(ctx, false)
	defer svc.Close()

	switch args[0] {
	case "status":
		st, err := svc.AuthStatus(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !st.Authenticated {
			fmt.Println("Not authenticated. Run: commentguard auth login")
			return
		}
		fmt.Printf("Authenticated: yes\n")
		fmt.Printf("Channel:       %s (%s)\n", st.ChannelTitle, st.ChannelID)
		if !st.Expiry.IsZero() {
			fmt.Printf("Token expiry:  %s\n", st.Expiry.Local().Format(time.RFC1123))
		}
		fmt.Printf("Refreshable:   %v\n", st.CanRefresh)

	case "login":
		u, err := svc.LoginURL(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Open this URL in a browser and grant access:")
		fmt.Println()
		fmt.Println(u)
		fmt.Println()
		fmt.Println("Then run: commentguard auth complete <state> <code>")

	case "complete":
		if len(args) != 3 {
			fmt.Fprintf(os.Stderr, "Usage: commentguard auth complete <state> <code>\n")
			os.Exit(1)
		}
		st, err := svc.CompleteLogin(ctx, args[1], args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Logged in as %s (%s)\n", st.ChannelTitle, st.ChannelID)

	case "logout":
		if err := svc.Logout(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Logged out.")

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown auth command %q\n", args[0])
		os.Exit(1)
	}
}

func printResponse(resp *moderation.Response, all bool) {
	s := resp.Summary
	rows := resp.SpamComments
	if all {
		rows = resp.Results
	}

	if len(rows) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COMMENT ID\tAUTHOR\tTYPE\tCONF\tRISK\tACTION\tSTATUS\tTEXT")
		for _, r := range rows {
			status := "-"
			if r.DeletionStatus != nil {
				status = r.DeletionStatus.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
				r.ID,
				truncate(r.Author, 20),
				r.Classification.SpamType,
				r.Classification.Confidence,
				r.Classification.RiskLevel,
				r.Classification.RecommendedAction,
				status,
				truncate(oneLine(r.Text), 50),
			)
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Fprintf(os.Stderr, "Run %s: stage=%s success=%v dry_run=%v\n", resp.RunID, resp.Stage, resp.Success, s.DryRun)
	fmt.Fprintf(os.Stderr, "Comments: %d  Spam: %d (%.2f%%)  High confidence: %d  Clean: %d  Unclassifiable: %d\n",
		s.TotalComments, s.SpamDetected, s.SpamRatePercent, s.HighConfidenceSpam, s.CleanComments, s.Unclassifiable)
	if !s.DryRun {
		fmt.Fprintf(os.Stderr, "Deleted: %d  Failed: %d  Not attempted: %d\n", s.DeletedCount, s.FailedDeletions, s.NotAttempted)
	}
	fmt.Fprintf(os.Stderr, "Time: %s\n", s.ProcessingTime.Round(time.Millisecond))
	for _, e := range resp.Errors {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

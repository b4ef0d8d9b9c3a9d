// Package commentguard finds and removes spam comments on YouTube videos.
//
// Comments are fetched through the YouTube Data API, judged by an OpenAI
// compatible chat model, turned into keep/delete decisions by fixed
// confidence thresholds and, when not in dry-run mode, removed on behalf
// of the authenticated channel owner.
//
// Overview
//
// Service is the composition root. It exposes:
//
//   - ProcessVideo: Run the moderation pipeline for one video
//   - ProcessBatch: Run it for up to ten videos, one after another
//   - AnalyzeComment: Classify a single piece of text
//   - DeleteComment: Remove one comment with the stored session
//   - VideoInfo: Fetch title, channel and statistics of a video
//   - AuthStatus, LoginURL, CompleteLogin, Logout: Manage the OAuth session
//
// Quick Start
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	svc, err := commentguard.New(ctx, cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	resp, err := svc.ProcessVideo(ctx, moderation.Request{VideoID: "dQw4w9WgXcQ", DryRun: true})
//	if err != nil {
//		log.Printf("run failed: %v", err)
//	}
//	fmt.Printf("spam: %d of %d\n", resp.Summary.SpamDetected, resp.Summary.TotalComments)
//
// Dry runs never remove anything. Enforcing runs require a stored session
// created with LoginURL and CompleteLogin; without one the run fails with
// ErrAuthRequired before any comment is fetched.
//
// Configuration
//
// config.Load reads, in increasing priority:
//
//  1. Default values
//  2. commentguard.json in the working directory or ~/.config/commentguard/
//  3. A .env file
//  4. Environment variables (COMMENTGUARD_*, YOUTUBE_API_KEY, OPENAI_API_KEY)
//
// Error Handling
//
// Fatal run errors match the sentinels re-exported here:
//
//	if errors.Is(err, commentguard.ErrQuotaExceeded) {
//		fmt.Println("daily quota used up; retry after midnight Pacific time")
//	}
//
// Per-comment failures never fail a run; they are listed in
// Response.Errors and in each result's deletion status.
//
// Advanced Usage
//
// The stages live in sub-packages and can be wired differently:
//
//   - moderation: Pipeline, decision policy, executor and aggregation
//   - youtube: Data API comment source, moderator and quota tracking
//   - classifier: AI classifier with schema validation and heuristic fallback
//   - auth: OAuth session manager
//   - storage: Credential persistence
//   - http: Rate limited, circuit breaking HTTP transport
package commentguard

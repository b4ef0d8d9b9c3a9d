// Package moderation implements the comment moderation pipeline: the data
// model, the decision policy, the rate limited executor, result aggregation
// and the state machine that ties them together for one video.
//
// The pipeline moves through
//
//	pending -> fetching -> classifying -> deciding -> (dry_run_complete | deleting) -> aggregating -> done
//
// and can fail from any non-terminal stage. Dry runs never reach the executor.
package moderation

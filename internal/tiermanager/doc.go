// Package tiermanager owns the tier state machine and the working-tier
// capacity invariant (§4.4): it demotes the lowest-scored working memory
// in the same transaction as a capacity-triggered insert, and runs the
// periodic migration loop the Scheduler invokes, tracking per source/target
// pair metrics.
package tiermanager

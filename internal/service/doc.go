// Package service runs the configured jobs through a shared executor.
//
// Overview
// The Supervisor owns the configured jobs, the executor and the reporters.
// In manual mode all jobs are submitted at once and the supervisor returns
// when all of them finished. In timer mode every job is triggered by its own
// schedule and the supervisor runs until the context is cancelled.
//
// Data flow:
//
//	Supervisor             Executor                  docker
//	    |                     |                         |
//	Start(name) ------------->| Execute(job)            |
//	    |                     | login/pull/inspect ---->|
//	    |                     | run ------------------->|
//	    |                     | (ctx done) stop ------->|
//	    |<------ Execution ---|                         |
//	report -> Reporters (stdout, dir, webhook)
//
// Invariants:
//   - At most one execution of a named job at a time, a trigger for a job
//     which is still running is skipped.
//   - Parallel execution is bounded by the executor capacity only. When the
//     executor is full, a triggered job waits in the executor queue.
//   - Each execution produces exactly one Report.
//   - Reporters are closed after all running jobs have finished.
package service

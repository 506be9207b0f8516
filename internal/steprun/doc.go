// Package steprun executes the fixed step sequence of a single job instance:
// checkout, setup, install, test, upload.
//
// Failure semantics follow the pipeline contract: checkout, setup and the
// three install sub-steps are fatal to the job; a test failure marks the job
// failed but the coverage report is still picked up and the upload step still
// runs; an upload failure is recorded on its step but never changes the job's
// pass/fail. There are no retries at any step.
package steprun

/*
Package tracing records the life of each job as a span.

A span opens when a job is submitted, notes the unit it is dispatched to
and closes when the job settles. Finished spans go through a buffered
channel to a collector goroutine that logs them at debug level, so the
manager loop never waits on logging.

# Usage

	tracer := tracing.New(logger, 1000)
	defer tracer.Close()

	span := tracer.Start(jobID)
	span.Dispatch(unitID)
	span.Finish("output", "ok", "")
	tracer.Submit(span)

A span that never reached a unit reports its whole life as QueueWait and
a zero RunTime.
*/
package tracing

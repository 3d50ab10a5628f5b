// Package runner drives the bench command: it executes one operation many
// times with bounded concurrency and optional pacing.
//
//	r := runner.New(runner.Options{
//		Concurrency:   4,
//		TotalRequests: 10000,
//		RatePerSecond: 500,
//		Requester:     runner.RequesterFunc(sendOne),
//	})
//	result := r.Run(ctx)
//
// A run stops when TotalRequests operations were scheduled, when Duration
// elapses or when ctx is cancelled, whichever comes first. Pacing uses a
// single token bucket shared by all workers.
package runner

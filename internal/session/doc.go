// Package session ties the measurement pieces of one request together.
//
// A [Session] owns a timer store, the request level tags and metadata
// overrides, and the collaborators used to read the clock and the host. It
// builds snapshots and packets on demand and flushes them through a
// [transport.Sender]. There is no process-wide instance: callers create one
// Session per logical request and may share it between the goroutines
// serving that request.
//
// A [Client] is the object style variant: timers are given explicit values
// and hit counts, and packets go to a fixed list of collectors.
//
// Flushing never panics and never retries. A failed send is returned to the
// caller, and with FlushResetData the session is reset whatever the outcome:
//
//	s := session.New(session.WithSender(sender))
//	defer s.Close(ctx)
//
//	id, _ := s.StartTimer(tags.Of("group", "mysql", "op", "select"), nil)
//	rows := query()
//	s.StopTimer(id)
//
//	if err := s.Flush(ctx, "", session.FlushResetData); err != nil {
//		log.WithError(err).Warn("pinba flush failed")
//	}
package session

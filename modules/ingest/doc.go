// Package ingest moves raw sensor bytes from a source into memory without
// ever blocking the reader on the consumer.
//
// Each stream owns one Ring: two fixed buffers of equal capacity. A producer
// goroutine reads chunks from the source into the active buffer; the
// consumer calls SwapAndDrain to exchange the buffer roles and take the bytes
// read so far. When the active buffer is full, incoming bytes are dropped and
// counted as lost until the next swap.
//
// Philosophy: "Drop bytes, never stall the device."
//
// Usage:
//
//	src, _ := ingest.OpenFile("recording.aer.zst")
//	r, err := ingest.New(src, 1<<20, 64<<10, ingest.WithName("left"))
//	if err != nil {
//	    return err
//	}
//	r.Start(ctx)
//	for range r.Ready() {
//	    d, err := r.SwapAndDrain()
//	    decode(d.Data)
//	    if err != nil {
//	        break // ErrStreamClosed or *IngestionError
//	    }
//	}
//	r.Stop()
//
// Sources: OpenFile (flat word logs, zstd when the name ends in .zst),
// DialTCP and DialWebSocket (with reconnect backoff on dial), and
// gstsource for GStreamer pipelines ending in an appsink.
package ingest

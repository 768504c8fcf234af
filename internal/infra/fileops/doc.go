// Package fileops moves, copies, links and deletes files on behalf of the
// log and the blob store.
//
// Requests are spread over a fixed set of worker lanes by a hash of the
// source path, so requests on the same path run in submission order.
// Copies can be throttled to a byte rate.
//
//	svc := fileops.New(fileops.DefaultConfig())
//	defer svc.Close()
//
//	for _, f := range files {
//		svc.Submit(fileops.Request{Op: fileops.OpMove, Src: f, Dst: archive(f)}, nil)
//	}
//	err := svc.WaitForCompletion(ctx)
package fileops

// Package clamd is a client for the ClamAV daemon's INSTREAM command.
//
// It streams any io.Reader to clamd over TCP in length-prefixed chunks and
// returns the daemon's verdict string unchanged. The verdict is not parsed:
// callers get exactly what clamd sent, including the trailing NUL byte
// ("stream: OK\x00", "stream: Win.Test.EICAR_HDB-1 FOUND\x00").
//
// Every call opens one connection and closes it before returning, on success
// and on failure alike. There is no pooling and no retry; errors are returned
// as *Error values that can be classified with IsConnectionError,
// IsIOError, IsProtocolWriteError, IsProtocolReadError and friends.
//
// # Quick Start
//
//	client, err := clamd.NewClient("localhost:3310", clamd.WithChunkSize(8192))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := os.Open("/path/to/file.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	verdict, err := client.Scan(ctx, f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%q\n", verdict)
package clamd

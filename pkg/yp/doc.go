// Package yp is a client for the NIS (YP) directory service.
//
// A Client is bound to one server for one domain. Dial finds the server,
// either from an explicit name or by asking the local ypbind, opens a UDP
// transport to it and checks that it serves the domain before handing the
// Client out:
//
//	client, err := yp.Dial(ctx, "example.com", "", yp.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	line, err := client.Match(ctx, "passwd.byname", []byte("alice"))
//	switch {
//	case errors.Is(err, yp.NoMatch):
//	    // no such user
//	case err != nil:
//	    return err
//	}
//
// Enumeration uses First and Next, or the All iterator:
//
//	for entry, err := range client.All(ctx, "group.byname") {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Printf("%s %s\n", entry.Key, entry.Value)
//	}
//
// Every failure is an *Error whose Code belongs to the closed ErrorCode set;
// the underlying transport or system error is available through Unwrap.
// Keys and values are returned as fresh byte slices with explicit length and
// may contain NUL bytes.
//
// The package relies on getsockname and close-on-exec and therefore builds
// on Unix systems only.
package yp

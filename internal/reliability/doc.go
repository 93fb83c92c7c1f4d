// Package reliability provides the polling loop used to wait for resources
// that become available asynchronously, such as a listener that has just been
// bound.
//
// Example usage:
//
//	err := reliability.Until(ctx, reliability.FixedDelay(10*time.Millisecond), func(ctx context.Context) error {
//	    conn, err := net.Dial("tcp", addr)
//	    if err != nil {
//	        return err
//	    }
//	    return conn.Close()
//	})
//
// Errors wrapped with Permanent stop the loop immediately.
package reliability

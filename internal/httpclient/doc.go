// Package httpclient provides the HTTP plumbing for loadgate.
//
// It owns two things:
//   - [NewClient], an *http.Client with a connection pool sized for the run
//   - [RequestBuilder], which builds the GET sent for every request slot
//
// # Request Building
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// When tracing propagation is enabled, Build injects the W3C trace context
// found in ctx into the request headers.
//
// # HTTP Client
//
//	client := httpclient.NewClient(10*time.Second, 40)
//	resp, err := client.Do(req)
//
// Callers that want to substitute a fake depend on [Doer] instead of
// *http.Client.
package httpclient

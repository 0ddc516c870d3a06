package httpclient

import (
	"context"

	"caiyun/internal/host"
)

type fetchTransport struct{ f host.Fetcher }

func (t fetchTransport) roundTrip(ctx context.Context, method string, req Request) (Response, error) {
	resp, err := t.f.Fetch(ctx, host.FetchRequest{Method: method, URL: req.URL, Headers: req.Headers, Body: req.Body})
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.Status, Headers: resp.Headers, Body: resp.Body}, nil
}

// callbackTransport adapts a callback client (callback hosts and the
// general-purpose host's request library) to a blocking call.
type callbackTransport struct{ c host.CallbackHTTP }

func (t callbackTransport) roundTrip(ctx context.Context, method string, req Request) (Response, error) {
	ch := make(chan result, 1)
	t.c.Do(method, host.FetchRequest{Method: method, URL: req.URL, Headers: req.Headers, Body: req.Body},
		func(err error, meta host.ResponseMeta, body string) {
			var res result
			if err != nil {
				res.err = err
			} else {
				res.resp = Response{StatusCode: meta.StatusCodeOrStatus(), Headers: meta.Headers, Body: body}
			}
			// A misbehaving host calling back twice must not block.
			select {
			case ch <- res:
			default:
			}
		})

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

type sandboxTransport struct{ newRequest host.RequestFactory }

func (t sandboxTransport) roundTrip(ctx context.Context, method string, req Request) (Response, error) {
	r := t.newRequest(req.URL)
	r.SetMethod(method)
	r.SetHeaders(req.Headers)
	r.SetBody(req.Body)
	body, err := r.LoadString(ctx)
	if err != nil {
		return Response{}, err
	}
	status, headers := r.Response()
	return Response{StatusCode: status, Headers: headers, Body: body}, nil
}

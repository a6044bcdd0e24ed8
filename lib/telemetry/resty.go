package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// bodies bigger than this are only recorded by size
const maxSpanBody = 4 << 10

// InstrumentResty wraps every request of the client in a span carrying its
// headers and, when small enough, its bodies.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := otel.Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), req.Method)
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(onAfterResponse)
	client.OnError(onError)
}

func headerAttributes(out *[]attribute.KeyValue, prefix string, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		*out = append(*out, attribute.StringSlice(fmt.Sprintf("%s.header.%s", prefix, k), headers[k]))
	}
}

func bodyAttribute(key string, body []byte) attribute.KeyValue {
	if len(body) > maxSpanBody {
		return attribute.String(key, fmt.Sprintf("<%d bytes>", len(body)))
	}
	return attribute.String(key, string(body))
}

func requestBodyAttribute(req *http.Request) (attribute.KeyValue, bool) {
	if req == nil || req.GetBody == nil {
		return attribute.KeyValue{}, false
	}
	reader, err := req.GetBody()
	if err != nil {
		return attribute.String("request.body", fmt.Sprintf("failed to get request body: %s", err.Error())), true
	}
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		return attribute.String("request.body", fmt.Sprintf("failed to read request body: %s", err.Error())), true
	}
	return bodyAttribute("request.body", body), true
}

func onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	// the raw request only exists once the request was sent
	span.SetName(fmt.Sprintf("http %s", res.Request.Method))
	span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)

	var attrs []attribute.KeyValue
	headerAttributes(&attrs, "request", res.Request.Header)
	headerAttributes(&attrs, "response", res.Header())
	if body, ok := requestBodyAttribute(res.Request.RawRequest); ok {
		attrs = append(attrs, body)
	}
	attrs = append(attrs, bodyAttribute("response.body", res.Body()))
	span.SetAttributes(attrs...)

	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}
	return nil
}

func onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	span.SetName(fmt.Sprintf("http %s", req.Method))
	var attrs []attribute.KeyValue
	headerAttributes(&attrs, "request", req.Header)
	if req.RawRequest != nil {
		attrs = append(attrs, httpconv.ClientRequest(req.RawRequest)...)
		if body, ok := requestBodyAttribute(req.RawRequest); ok {
			attrs = append(attrs, body)
		}
	}
	span.SetAttributes(attrs...)
}

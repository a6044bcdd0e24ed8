package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
)

// maxDumpedBody is the amount of bytes of a body written into a dump, match
// reports run into megabytes.
const maxDumpedBody = 256 << 10

func writeHeaders(out *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(out, "%s: %s\n", k, v)
		}
	}
}

func writeBody(out *strings.Builder, body string) {
	if len(body) > maxDumpedBody {
		fmt.Fprintf(out, "%s\n[%d bytes truncated]\n", body[:maxDumpedBody], len(body)-maxDumpedBody)
		return
	}
	out.WriteString(body)
	out.WriteString("\n")
}

func requestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	defer body.Close()
	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(content)
}

func formatHttpMessage(res *resty.Response) string {
	var out strings.Builder

	out.WriteString("---- REQUEST ----\n\n")
	fmt.Fprintf(&out, "%s %s\n\n", res.Request.Method, res.Request.URL)
	if raw := res.Request.RawRequest; raw != nil {
		writeHeaders(&out, raw.Header)
	}
	out.WriteString("\n")
	writeBody(&out, requestBody(res.Request.RawRequest))

	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		if redirected, err := res.RawResponse.Location(); err == nil {
			responseUrl = redirected.String()
		}
	}
	out.WriteString("\n---- RESPONSE ----\n\n")
	fmt.Fprintf(&out, "%d %s\n\n", res.StatusCode(), responseUrl)
	writeHeaders(&out, res.Header())
	out.WriteString("\n")
	writeBody(&out, res.String())

	return out.String()
}
